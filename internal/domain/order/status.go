package order

import (
	"slices"
	"strings"
)

// Status is the fulfillment status of an order.
type Status string

// Order statuses. DELIVERED, CANCELED and REFUNDED are terminal.
const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusPreparing      Status = "PREPARING"
	StatusShipped        Status = "SHIPPED"
	StatusDelivered      Status = "DELIVERED"
	StatusCanceled       Status = "CANCELED"
	StatusRefunded       Status = "REFUNDED"
)

// Statuses lists every order status in lifecycle order.
var Statuses = []Status{
	StatusPendingPayment,
	StatusPaid,
	StatusPreparing,
	StatusShipped,
	StatusDelivered,
	StatusCanceled,
	StatusRefunded,
}

// transitions is the single source of truth for legal order status moves.
// Self-transitions are always legal and are not listed.
var transitions = map[Status][]Status{
	StatusPendingPayment: {StatusPaid, StatusCanceled, StatusRefunded},
	StatusPaid:           {StatusPreparing, StatusShipped, StatusCanceled, StatusRefunded},
	StatusPreparing:      {StatusShipped, StatusCanceled, StatusRefunded},
	StatusShipped:        {StatusDelivered, StatusCanceled, StatusRefunded},
	StatusDelivered:      nil,
	StatusCanceled:       nil,
	StatusRefunded:       nil,
}

// Field names a piece of order data that a status may require.
type Field string

const (
	FieldTrackingCode     Field = "tracking_code"
	FieldDeliveryDeadline Field = "delivery_deadline"
)

var requiredFields = map[Status][]Field{
	StatusShipped: {FieldTrackingCode, FieldDeliveryDeadline},
}

// ParseStatus converts s into a Status, rejecting anything outside the closed set.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Reason: "unknown order status " + strings.TrimSpace(s)}
	}
	return st, nil
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing transition other than itself.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s Status) String() string { return string(s) }

// IsLegalTransition reports whether an order may move from one status to
// another. Re-applying the current status is always legal.
func IsLegalTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// AllowedTransitions returns the statuses reachable from the given one,
// excluding the self-transition.
func AllowedTransitions(from Status) []Status {
	return slices.Clone(transitions[from])
}

// RequiredFields returns the data an order must carry to enter status.
func RequiredFields(status Status) []Field {
	return slices.Clone(requiredFields[status])
}

// PaymentStatus is the gateway-reported state of the payment attempt.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentInProcess PaymentStatus = "IN_PROCESS"
	PaymentApproved  PaymentStatus = "APPROVED"
	PaymentRejected  PaymentStatus = "REJECTED"
	PaymentCanceled  PaymentStatus = "CANCELED"
	PaymentExpired   PaymentStatus = "EXPIRED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// paymentRank orders payment statuses by precedence. A signal only moves an
// order forward when it outranks the recorded status.
var paymentRank = map[PaymentStatus]int{
	PaymentPending:   0,
	PaymentInProcess: 1,
	PaymentRejected:  2,
	PaymentExpired:   3,
	PaymentCanceled:  3,
	PaymentApproved:  4,
	PaymentRefunded:  5,
}

// ParsePaymentStatus converts s into a PaymentStatus.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	ps := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !ps.Valid() {
		return "", &UnknownPaymentStatusError{Raw: s}
	}
	return ps, nil
}

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	_, ok := paymentRank[p]
	return ok
}

// Rank returns the precedence of p, or -1 for unknown values.
func (p PaymentStatus) Rank() int {
	r, ok := paymentRank[p]
	if !ok {
		return -1
	}
	return r
}

// Failed reports whether the payment attempt ended without collecting money,
// which lets a new attempt replace it.
func (p PaymentStatus) Failed() bool {
	switch p {
	case PaymentRejected, PaymentCanceled, PaymentExpired:
		return true
	default:
		return false
	}
}

func (p PaymentStatus) String() string { return string(p) }

// PaymentMethod is how the customer intends to pay.
type PaymentMethod string

const (
	MethodPIX    PaymentMethod = "PIX"
	MethodCard   PaymentMethod = "CARD"
	MethodBoleto PaymentMethod = "BOLETO"
	MethodCash   PaymentMethod = "CASH"
)

// ParsePaymentMethod converts s into a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MethodPIX, MethodCard, MethodBoleto, MethodCash:
		return m, nil
	}
	return "", &ValidationError{Field: "payment_method", Reason: "unsupported payment method " + s}
}

// Channel records where the order was placed.
type Channel string

const (
	ChannelOnline   Channel = "ONLINE"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelManual   Channel = "MANUAL"
)

// ParseChannel converts s into a Channel. Empty input means ONLINE.
func ParseChannel(s string) (Channel, error) {
	if strings.TrimSpace(s) == "" {
		return ChannelOnline, nil
	}
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case ChannelOnline, ChannelWhatsApp, ChannelManual:
		return c, nil
	}
	return "", &ValidationError{Field: "channel", Reason: "unknown channel " + s}
}

// Tone is a semantic colour token for rendering a status badge.
type Tone string

const (
	ToneWarning Tone = "warning"
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneDanger  Tone = "danger"
	ToneMuted   Tone = "muted"
)

type display struct {
	label string
	tone  Tone
}

var statusDisplay = map[Status]display{
	StatusPendingPayment: {"Aguardando pagamento", ToneWarning},
	StatusPaid:           {"Pago", ToneSuccess},
	StatusPreparing:      {"Preparando envio", ToneInfo},
	StatusShipped:        {"Enviado", ToneInfo},
	StatusDelivered:      {"Concluído", ToneSuccess},
	StatusCanceled:       {"Cancelado", ToneDanger},
	StatusRefunded:       {"Estornado", ToneMuted},
}

var paymentDisplay = map[PaymentStatus]display{
	PaymentPending:   {"Pendente", ToneWarning},
	PaymentInProcess: {"Em processamento", ToneInfo},
	PaymentApproved:  {"Aprovado", ToneSuccess},
	PaymentRejected:  {"Recusado", ToneDanger},
	PaymentCanceled:  {"Cancelado", ToneDanger},
	PaymentExpired:   {"Expirado", ToneMuted},
	PaymentRefunded:  {"Estornado", ToneMuted},
}

// Label returns the customer-facing pt-BR label.
func (s Status) Label() string { return statusDisplay[s].label }

// Tone returns the badge colour token.
func (s Status) Tone() Tone { return statusDisplay[s].tone }

// Label returns the customer-facing pt-BR label.
func (p PaymentStatus) Label() string { return paymentDisplay[p].label }

// Tone returns the badge colour token.
func (p PaymentStatus) Tone() Tone { return paymentDisplay[p].tone }
