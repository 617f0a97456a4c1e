package order

import (
	"fmt"
	"strings"
)

// ValidationError indicates malformed input, including an order whose total
// does not match the sum of its line subtotals.
type ValidationError struct {
	OrderID int64
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.OrderID != 0 {
		return fmt.Sprintf("order %d: invalid %s: %s", e.OrderID, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidCartError indicates a checkout with no lines or with lines that
// cannot be priced.
type InvalidCartError struct {
	Reason string
}

func (e *InvalidCartError) Error() string {
	return "invalid cart: " + e.Reason
}

// NotFoundError indicates the referenced order does not exist.
type NotFoundError struct {
	OrderID   int64
	PaymentID string
}

func (e *NotFoundError) Error() string {
	if e.PaymentID != "" {
		return fmt.Sprintf("order for payment %s not found", e.PaymentID)
	}
	return fmt.Sprintf("order %d not found", e.OrderID)
}

// IllegalTransitionError indicates a move the transition table forbids.
type IllegalTransitionError struct {
	OrderID int64
	From    Status
	To      Status
	Allowed []Status
}

func (e *IllegalTransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		names := make([]string, len(e.Allowed))
		for i, s := range e.Allowed {
			names[i] = string(s)
		}
		allowed = strings.Join(names, ", ")
	}
	return fmt.Sprintf("order %d: cannot move from %s to %s (allowed: %s)", e.OrderID, e.From, e.To, allowed)
}

// IncompleteTransitionError indicates a legal move that lacks data the target
// status requires.
type IncompleteTransitionError struct {
	OrderID int64
	To      Status
	Missing []Field
}

func (e *IncompleteTransitionError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return fmt.Sprintf("order %d: status %s requires %s", e.OrderID, e.To, strings.Join(names, ", "))
}

// StoreUnavailableError wraps a persistence failure. The caller may retry.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("order store unavailable: %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// UnknownPaymentStatusError indicates a gateway status outside the known set.
type UnknownPaymentStatusError struct {
	Provider string
	Raw      string
}

func (e *UnknownPaymentStatusError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("unknown %s payment status %q", e.Provider, e.Raw)
	}
	return fmt.Sprintf("unknown payment status %q", e.Raw)
}

// IntegrityError indicates a stored order that violates an invariant.
type IntegrityError struct {
	OrderID int64
	Reason  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("order %d integrity violation: %s", e.OrderID, e.Reason)
}
