// Package paymentsignal turns payment gateway notifications into normalized
// order.PaymentSignal values and feeds them to the order lifecycle, both from
// webhook deliveries and from a reconciliation poller.
package paymentsignal

import (
	"strings"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

// Normalizer maps a provider's raw payment statuses onto order.PaymentStatus.
// Unknown values are errors, never a default.
type Normalizer struct {
	provider string
	table    map[string]order.PaymentStatus
}

// MercadoPagoStatuses is the Mercado Pago status vocabulary.
var MercadoPagoStatuses = map[string]order.PaymentStatus{
	"pending":      order.PaymentPending,
	"authorized":   order.PaymentInProcess,
	"in_process":   order.PaymentInProcess,
	"in_mediation": order.PaymentInProcess,
	"approved":     order.PaymentApproved,
	"rejected":     order.PaymentRejected,
	"cancelled":    order.PaymentCanceled,
	"expired":      order.PaymentExpired,
	"refunded":     order.PaymentRefunded,
	"charged_back": order.PaymentRefunded,
}

// NewNormalizer creates a Normalizer for provider with the given table.
func NewNormalizer(provider string, table map[string]order.PaymentStatus) *Normalizer {
	t := make(map[string]order.PaymentStatus, len(table))
	for k, v := range table {
		t[strings.ToLower(k)] = v
	}
	return &Normalizer{provider: provider, table: t}
}

// Provider returns the provider name.
func (n *Normalizer) Provider() string { return n.provider }

// Normalize converts a raw provider status.
func (n *Normalizer) Normalize(raw string) (order.PaymentStatus, error) {
	st, ok := n.table[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", &order.UnknownPaymentStatusError{Provider: n.provider, Raw: raw}
	}
	return st, nil
}
