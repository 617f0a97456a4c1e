package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// legalFixture is written out by hand so a change to the table has to be
// made twice.
var legalFixture = map[Status][]Status{
	StatusPendingPayment: {StatusPaid, StatusCanceled, StatusRefunded},
	StatusPaid:           {StatusPreparing, StatusShipped, StatusCanceled, StatusRefunded},
	StatusPreparing:      {StatusShipped, StatusCanceled, StatusRefunded},
	StatusShipped:        {StatusDelivered, StatusCanceled, StatusRefunded},
}

func TestIsLegalTransition_MatchesFixture(t *testing.T) {
	for _, from := range Statuses {
		for _, to := range Statuses {
			want := from == to
			for _, s := range legalFixture[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, IsLegalTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIsLegalTransition_Reflexive(t *testing.T) {
	for _, s := range Statuses {
		assert.True(t, IsLegalTransition(s, s), s)
	}
}

func TestIsLegalTransition_Unknown(t *testing.T) {
	assert.False(t, IsLegalTransition("LOST", StatusPaid))
	assert.False(t, IsLegalTransition(StatusPaid, "LOST"))
	assert.False(t, IsLegalTransition("LOST", "LOST"))
}

func TestIsLegalTransition_NoReturnToPendingPayment(t *testing.T) {
	for _, from := range Statuses {
		if from == StatusPendingPayment {
			continue
		}
		assert.False(t, IsLegalTransition(from, StatusPendingPayment), from)
	}
}

func TestTerminal(t *testing.T) {
	terminal := map[Status]bool{StatusDelivered: true, StatusCanceled: true, StatusRefunded: true}
	for _, s := range Statuses {
		assert.Equal(t, terminal[s], s.Terminal(), s)
		if terminal[s] {
			assert.Empty(t, AllowedTransitions(s))
		}
	}
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []Field{FieldTrackingCode, FieldDeliveryDeadline}, RequiredFields(StatusShipped))
	for _, s := range Statuses {
		if s != StatusShipped {
			assert.Empty(t, RequiredFields(s), s)
		}
	}

	// Callers must not be able to corrupt the table.
	f := RequiredFields(StatusShipped)
	f[0] = "x"
	assert.Equal(t, FieldTrackingCode, RequiredFields(StatusShipped)[0])
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" shipped ")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, s)

	_, err = ParseStatus("LOST")
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "status", vErr.Field)
}

func TestParsePaymentStatus(t *testing.T) {
	p, err := ParsePaymentStatus("in_process")
	require.NoError(t, err)
	assert.Equal(t, PaymentInProcess, p)

	_, err = ParsePaymentStatus("authorized")
	var uErr *UnknownPaymentStatusError
	require.ErrorAs(t, err, &uErr)
	assert.Equal(t, "authorized", uErr.Raw)
}

func TestPaymentRank(t *testing.T) {
	assert.Less(t, PaymentPending.Rank(), PaymentInProcess.Rank())
	assert.Less(t, PaymentInProcess.Rank(), PaymentRejected.Rank())
	assert.Less(t, PaymentRejected.Rank(), PaymentApproved.Rank())
	assert.Equal(t, PaymentCanceled.Rank(), PaymentExpired.Rank())
	assert.Less(t, PaymentApproved.Rank(), PaymentRefunded.Rank())
	assert.Equal(t, -1, PaymentStatus("X").Rank())
}

func TestLabels(t *testing.T) {
	for _, s := range Statuses {
		assert.NotEmpty(t, s.Label(), s)
		assert.NotEmpty(t, s.Tone(), s)
	}
	for p := range paymentRank {
		assert.NotEmpty(t, p.Label(), p)
	}
	assert.Equal(t, "Aguardando pagamento", StatusPendingPayment.Label())
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel("")
	require.NoError(t, err)
	assert.Equal(t, ChannelOnline, c)

	c, err = ParseChannel("whatsapp")
	require.NoError(t, err)
	assert.Equal(t, ChannelWhatsApp, c)

	_, err = ParseChannel("fax")
	require.Error(t, err)
}
