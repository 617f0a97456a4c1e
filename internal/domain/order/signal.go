package order

import "strings"

// PaymentSignal is a normalized notification that a payment attempt changed
// state, from a webhook delivery or a reconciliation poll.
type PaymentSignal struct {
	OrderID   int64
	PaymentID string
	Status    PaymentStatus
	Actor     Actor
	// Detail is the provider's raw status, kept for the audit note.
	Detail string
}

// Outcome describes what a payment signal did to the order.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
)

// SignalResult is returned by RecordPaymentSignal.
type SignalResult struct {
	Order   *Order
	Outcome Outcome
	// Attention is set when the signal was recorded but an operator must act,
	// e.g. money captured for an order that was already canceled.
	Attention string
}

// resolution is the pure decision for a signal against the current order.
type resolution struct {
	outcome   Outcome
	change    *Change
	attention string
}

// resolveSignal applies precedence and the payment effect table. It never
// touches storage.
func resolveSignal(cur *Order, sig PaymentSignal) resolution {
	samePayment := sig.PaymentID == "" || cur.PaymentID == "" || sig.PaymentID == cur.PaymentID
	if samePayment && sig.Status == cur.PaymentStatus {
		return resolution{outcome: OutcomeDuplicate}
	}

	if !samePayment {
		// Another attempt only replaces a failed one, and only with a live
		// status. Anything else belongs to an attempt the order moved past.
		if !cur.PaymentStatus.Failed() || sig.Status.Failed() {
			return resolution{
				outcome:   OutcomeStale,
				attention: "signal for payment " + sig.PaymentID + " but order tracks payment " + cur.PaymentID,
			}
		}
	} else if sig.Status.Rank() <= cur.PaymentStatus.Rank() {
		return resolution{outcome: OutcomeStale}
	}

	next, note, attention := paymentEffect(cur.Status, sig.Status)
	if sig.Detail != "" {
		note += " (" + sig.Detail + ")"
	}
	return resolution{
		outcome: OutcomeApplied,
		change: &Change{
			Status:        next,
			PaymentStatus: sig.Status,
			PaymentID:     sig.PaymentID,
			Actor:         sig.Actor,
			Note:          note,
		},
		attention: attention,
	}
}

// paymentEffect maps an incoming payment status onto the order status.
func paymentEffect(cur Status, ps PaymentStatus) (next Status, note, attention string) {
	switch ps {
	case PaymentApproved:
		switch cur {
		case StatusPendingPayment:
			return StatusPaid, "payment approved", ""
		case StatusCanceled:
			return cur, "payment approved after cancellation", "payment captured for canceled order, refund required"
		default:
			return cur, "payment approved", ""
		}
	case PaymentCanceled, PaymentExpired:
		switch {
		case cur == StatusPendingPayment:
			return StatusCanceled, "payment " + humanize(ps), ""
		case cur.Terminal():
			return cur, "payment " + humanize(ps), ""
		default:
			return cur, "payment " + humanize(ps) + " after order advanced", "payment voided for order in " + string(cur)
		}
	case PaymentRefunded:
		if cur.Terminal() {
			return cur, "refund recorded on " + humanize(cur) + " order", ""
		}
		return StatusRefunded, "payment refunded", ""
	case PaymentRejected:
		return cur, "payment rejected", ""
	default:
		return cur, "payment " + humanize(ps), ""
	}
}

func humanize[T ~string](v T) string {
	return strings.ReplaceAll(strings.ToLower(string(v)), "_", " ")
}
