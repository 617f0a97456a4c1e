package paymentsignal

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

// AwaitingLister lists orders that are still waiting for payment.
type AwaitingLister interface {
	ListAwaitingPayment(ctx context.Context, createdBefore time.Time, limit int) ([]order.Order, error)
}

// PollerConfig controls payment reconciliation.
type PollerConfig struct {
	Enabled     bool          `default:"true" usage:"Poll the gateway for orders stuck awaiting payment"`
	Interval    time.Duration `default:"1m" usage:"Reconciliation interval"`
	MinAge      time.Duration `default:"5m" usage:"Only reconcile orders older than this"`
	BatchSize   int           `default:"100" usage:"Orders per reconciliation round"`
	Concurrency int           `default:"4" usage:"Concurrent gateway lookups"`
}

// Poller catches payments whose webhooks were lost. It only ever calls
// RecordPaymentSignal, so the engine's precedence rules apply unchanged.
type Poller struct {
	adapter *Adapter
	orders  AwaitingLister
	cfg     PollerConfig
	now     func() time.Time
}

// NewPoller creates a Poller.
func NewPoller(adapter *Adapter, orders AwaitingLister, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Poller{adapter: adapter, orders: orders, cfg: cfg, now: time.Now}
}

// Run reconciles on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	lg.Info("Payment poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Duration("min_age", p.cfg.MinAge),
	)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("Payment poller stopped")
			return nil
		case <-ticker.C:
			n, err := p.Reconcile(ctx)
			if err != nil {
				lg.Error("Reconciliation round failed", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Info("Reconciliation round done", zap.Int("orders", n))
			}
		}
	}
}

// Reconcile runs one round and returns how many orders were checked.
// Per-order failures are logged and do not abort the round.
func (p *Poller) Reconcile(ctx context.Context) (int, error) {
	orders, err := p.orders.ListAwaitingPayment(ctx, p.now().Add(-p.cfg.MinAge), p.cfg.BatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "list awaiting payment")
	}

	lg := zctx.From(ctx)
	actor := order.Actor{Kind: order.ActorPoller}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, o := range orders {
		g.Go(func() error {
			res, err := p.adapter.Deliver(gctx, o.PaymentID, actor)
			switch {
			case errors.Is(err, ErrNoSignal):
				lg.Debug("Gateway unavailable, will retry", zap.Int64("order_id", o.ID))
			case err != nil:
				lg.Warn("Reconcile order failed",
					zap.Int64("order_id", o.ID),
					zap.String("payment_id", o.PaymentID),
					zap.Error(err),
				)
			case res.Outcome == order.OutcomeApplied:
				lg.Info("Reconciled payment",
					zap.Int64("order_id", o.ID),
					zap.String("payment_status", string(res.Order.PaymentStatus)),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(orders), nil
}
