package notify

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

var _ order.Notifier = Fanout(nil)

// Fanout delivers to every notifier concurrently. One failing channel does
// not stop the others; all errors are joined.
type Fanout []order.Notifier

func (f Fanout) Notify(ctx context.Context, o *order.Order, prev, next order.Status) error {
	errs := make([]error, len(f))
	var g errgroup.Group
	for i, n := range f {
		g.Go(func() error {
			errs[i] = n.Notify(ctx, o, prev, next)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Log records status changes in the service log.
var Log = order.NotifierFunc(func(ctx context.Context, o *order.Order, prev, next order.Status) error {
	zctx.From(ctx).Info("Order status notification",
		zap.Int64("order_id", o.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
		zap.String("payment_status", string(o.PaymentStatus)),
	)
	return nil
})
