package order

import "context"

// Notifier is told about every committed status change. Implementations must
// tolerate redelivery; failures never roll back the transition. prev is empty
// for a newly created order.
type Notifier interface {
	Notify(ctx context.Context, o *Order, prev, next Status) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, o *Order, prev, next Status) error

func (f NotifierFunc) Notify(ctx context.Context, o *Order, prev, next Status) error {
	return f(ctx, o, prev, next)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *Order, Status, Status) error { return nil }
