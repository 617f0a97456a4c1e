package order

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/lojavirtual/orderflow/internal/domain/product"
)

// Line is a priced cart line ready to be snapshotted into an order item.
type Line struct {
	ProductID string
	Name      string
	Image     string
	UnitPrice decimal.Decimal
	Quantity  int
}

// CartEntry is an unpriced cart line as submitted by a customer.
type CartEntry struct {
	ProductID string
	Quantity  int
}

// Payment describes the payment intent supplied at creation.
type Payment struct {
	Method    PaymentMethod
	PaymentID string
	// Settled marks a manual entry whose payment was already collected.
	// Only admins may set it.
	Settled bool
}

// CreateOrderRequest holds the input for CreateOrder.
type CreateOrderRequest struct {
	Lines           []Line
	CustomerID      string
	Contact         Contact
	ShippingAddress string
	Payment         Payment
	Channel         Channel
	// ExpectedTotal, when set, must equal the computed total.
	ExpectedTotal *decimal.Decimal
	Actor         Actor
}

// StatusUpdate carries the optional data an admin sends with a status change.
type StatusUpdate struct {
	TrackingCode     string
	DeliveryDeadline *time.Time
	Note             string
}

// Options configures a Lifecycle.
type Options struct {
	Notifier       Notifier
	Catalog        product.Repository
	NotifyTimeout  time.Duration
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Now            func() time.Time
}

func (o *Options) setDefaults() {
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 10 * time.Second
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Lifecycle is the order state machine. Every operation re-validates against
// the state the store hands back under lock, so concurrent callers for the
// same order serialize in the store and never in memory here.
type Lifecycle struct {
	orders        Repository
	catalog       product.Repository
	notifier      Notifier
	notifyTimeout time.Duration
	now           func() time.Time

	tracer      trace.Tracer
	transitions metric.Int64Counter
	signals     metric.Int64Counter
	notifyFails metric.Int64Counter
}

// NewLifecycle creates the engine over the given store.
func NewLifecycle(orders Repository, opts Options) (*Lifecycle, error) {
	opts.setDefaults()

	meter := opts.MeterProvider.Meter("github.com/lojavirtual/orderflow/internal/domain/order")
	transitions, err := meter.Int64Counter("orderflow.order.transitions",
		metric.WithDescription("Committed order status transitions"))
	if err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	signals, err := meter.Int64Counter("orderflow.payment.signals",
		metric.WithDescription("Payment signals by outcome"))
	if err != nil {
		return nil, errors.Wrap(err, "signals counter")
	}
	notifyFails, err := meter.Int64Counter("orderflow.notify.failures",
		metric.WithDescription("Notifications that failed after commit"))
	if err != nil {
		return nil, errors.Wrap(err, "notify failures counter")
	}

	return &Lifecycle{
		orders:        orders,
		catalog:       opts.Catalog,
		notifier:      opts.Notifier,
		notifyTimeout: opts.NotifyTimeout,
		now:           opts.Now,
		tracer:        opts.TracerProvider.Tracer("github.com/lojavirtual/orderflow/internal/domain/order"),
		transitions:   transitions,
		signals:       signals,
		notifyFails:   notifyFails,
	}, nil
}

// PriceCart resolves customer cart entries against the catalog. Prices always
// come from the catalog, never from the client.
func (l *Lifecycle) PriceCart(ctx context.Context, entries []CartEntry) ([]Line, error) {
	if len(entries) == 0 {
		return nil, &InvalidCartError{Reason: "cart is empty"}
	}
	if l.catalog == nil {
		return nil, errors.New("catalog not configured")
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		if e.Quantity < 1 {
			return nil, &ValidationError{Field: "quantity", Reason: "quantity must be at least 1 for product " + e.ProductID}
		}
		ids[i] = e.ProductID
	}

	products, err := l.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "price cart", Err: err}
	}
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]Line, len(entries))
	for i, e := range entries {
		p, ok := byID[e.ProductID]
		if !ok || !p.Active {
			return nil, &InvalidCartError{Reason: "product " + e.ProductID + " is not available"}
		}
		lines[i] = Line{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			UnitPrice: p.Price,
			Quantity:  e.Quantity,
		}
	}
	return lines, nil
}

// CreateOrder validates and persists a new order with its initial audit row.
// Manual admin entries use the same path with an admin actor.
func (l *Lifecycle) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ *Order, rerr error) {
	ctx, span := l.tracer.Start(ctx, "order.CreateOrder")
	defer func() { endSpan(span, rerr) }()

	if len(req.Lines) == 0 {
		return nil, &InvalidCartError{Reason: "cart is empty"}
	}
	if strings.TrimSpace(req.Contact.Name) == "" {
		return nil, &ValidationError{Field: "contact.name", Reason: "name is required"}
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return nil, &ValidationError{Field: "shipping_address", Reason: "address is required"}
	}
	if _, err := ParsePaymentMethod(string(req.Payment.Method)); err != nil {
		return nil, err
	}
	if req.Payment.Settled && req.Actor.Kind != ActorAdmin {
		return nil, &ValidationError{Field: "payment.settled", Reason: "only admins may record settled payments"}
	}
	if req.Channel == "" {
		req.Channel = ChannelOnline
	}
	if req.Actor.Kind == "" {
		req.Actor.Kind = ActorCustomer
	}

	items := make([]Item, len(req.Lines))
	total := decimal.Zero
	for i, ln := range req.Lines {
		if ln.Quantity < 1 {
			return nil, &ValidationError{Field: "quantity", Reason: "quantity must be at least 1 for product " + ln.ProductID}
		}
		if ln.UnitPrice.IsNegative() {
			return nil, &ValidationError{Field: "unit_price", Reason: "negative price for product " + ln.ProductID}
		}
		price := ln.UnitPrice.Round(2)
		sub := price.Mul(decimal.NewFromInt(int64(ln.Quantity)))
		items[i] = Item{
			ProductID: ln.ProductID,
			Name:      ln.Name,
			Image:     ln.Image,
			UnitPrice: price,
			Quantity:  ln.Quantity,
			Subtotal:  sub,
		}
		total = total.Add(sub)
	}
	if req.ExpectedTotal != nil && !req.ExpectedTotal.Equal(total) {
		return nil, &ValidationError{
			Field:  "total",
			Reason: "expected " + req.ExpectedTotal.StringFixed(2) + " but items sum to " + total.StringFixed(2),
		}
	}

	status, payment := StatusPendingPayment, PaymentPending
	if req.Payment.Method == MethodCash || req.Payment.Settled {
		status, payment = StatusPaid, PaymentApproved
	}

	now := l.now()
	o := &Order{
		CustomerID:      req.CustomerID,
		Contact:         req.Contact,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		Items:           items,
		Total:           total,
		PaymentMethod:   req.Payment.Method,
		PaymentStatus:   payment,
		PaymentID:       req.Payment.PaymentID,
		Status:          status,
		Channel:         req.Channel,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	initial := Transition{
		ToStatus:  status,
		ToPayment: payment,
		PaymentID: o.PaymentID,
		Actor:     req.Actor,
		Note:      "order created",
		CreatedAt: now,
	}
	if err := l.orders.Create(ctx, o, initial); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", o.ID))

	zctx.From(ctx).Info("Order created",
		zap.Int64("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.String("channel", string(o.Channel)),
		zap.String("actor", req.Actor.String()),
		zap.String("total", o.Total.StringFixed(2)),
	)
	l.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", ""),
		attribute.String("to", string(status)),
	))
	l.notify(ctx, o, "", status)
	return o, nil
}

// RecordPaymentSignal reconciles a payment signal with the order using
// state precedence. Duplicate and stale signals succeed without changes.
func (l *Lifecycle) RecordPaymentSignal(ctx context.Context, sig PaymentSignal) (_ *SignalResult, rerr error) {
	ctx, span := l.tracer.Start(ctx, "order.RecordPaymentSignal", trace.WithAttributes(
		attribute.Int64("order.id", sig.OrderID),
		attribute.String("payment.id", sig.PaymentID),
		attribute.String("payment.status", string(sig.Status)),
	))
	defer func() { endSpan(span, rerr) }()

	if !sig.Status.Valid() {
		return nil, &UnknownPaymentStatusError{Raw: string(sig.Status)}
	}
	if sig.Actor.Kind == "" {
		sig.Actor.Kind = ActorWebhook
	}

	var (
		res  resolution
		prev Status
	)
	o, applied, err := l.orders.ApplyTransition(ctx, sig.OrderID, func(cur *Order) (*Change, error) {
		prev = cur.Status
		res = resolveSignal(cur, sig)
		if res.change != nil && !IsLegalTransition(cur.Status, res.change.Status) {
			return nil, &IllegalTransitionError{
				OrderID: cur.ID,
				From:    cur.Status,
				To:      res.change.Status,
				Allowed: AllowedTransitions(cur.Status),
			}
		}
		return res.change, nil
	})
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(
		zap.Int64("order_id", o.ID),
		zap.String("payment_id", sig.PaymentID),
		zap.String("incoming", string(sig.Status)),
		zap.String("actor", sig.Actor.String()),
	)
	l.signals.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(res.outcome))))
	span.SetAttributes(attribute.String("signal.outcome", string(res.outcome)))

	switch res.outcome {
	case OutcomeStale:
		lg.Warn("Stale payment signal ignored",
			zap.String("current_payment", string(o.PaymentStatus)),
			zap.String("current_status", string(o.Status)),
		)
	case OutcomeDuplicate:
		lg.Debug("Duplicate payment signal")
	case OutcomeApplied:
		lg.Info("Payment signal applied",
			zap.String("from", string(prev)),
			zap.String("to", string(o.Status)),
		)
	}
	if res.attention != "" {
		lg.Warn("Payment signal needs manual attention", zap.String("reason", res.attention))
	}

	if applied && prev != o.Status {
		l.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(prev)),
			attribute.String("to", string(o.Status)),
		))
		l.notify(ctx, o, prev, o.Status)
	}

	return &SignalResult{Order: o, Outcome: res.outcome, Attention: res.attention}, nil
}

// UpdateOrderStatus is the admin transition path. Legality and required data
// are checked against the locked order, so a concurrent change that makes
// the move illegal is reported rather than overwritten.
func (l *Lifecycle) UpdateOrderStatus(ctx context.Context, id int64, to Status, upd StatusUpdate, actor Actor) (_ *Order, rerr error) {
	ctx, span := l.tracer.Start(ctx, "order.UpdateOrderStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.to", string(to)),
	))
	defer func() { endSpan(span, rerr) }()

	if !to.Valid() {
		return nil, &ValidationError{OrderID: id, Field: "status", Reason: "unknown order status " + string(to)}
	}
	if upd.DeliveryDeadline != nil && upd.DeliveryDeadline.IsZero() {
		upd.DeliveryDeadline = nil
	}
	upd.TrackingCode = strings.TrimSpace(upd.TrackingCode)

	var prev Status
	o, applied, err := l.orders.ApplyTransition(ctx, id, func(cur *Order) (*Change, error) {
		prev = cur.Status
		return decideStatusUpdate(cur, to, upd, actor)
	})
	if err != nil {
		return nil, err
	}

	if applied {
		zctx.From(ctx).Info("Order status updated",
			zap.Int64("order_id", id),
			zap.String("from", string(prev)),
			zap.String("to", string(o.Status)),
			zap.String("actor", actor.String()),
		)
	}
	if applied && prev != o.Status {
		l.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", string(prev)),
			attribute.String("to", string(o.Status)),
		))
		l.notify(ctx, o, prev, o.Status)
	}
	return o, nil
}

func decideStatusUpdate(cur *Order, to Status, upd StatusUpdate, actor Actor) (*Change, error) {
	if !IsLegalTransition(cur.Status, to) {
		return nil, &IllegalTransitionError{
			OrderID: cur.ID,
			From:    cur.Status,
			To:      to,
			Allowed: AllowedTransitions(cur.Status),
		}
	}

	merged := cur.Clone()
	if upd.TrackingCode != "" {
		merged.TrackingCode = upd.TrackingCode
	}
	if upd.DeliveryDeadline != nil {
		merged.DeliveryDeadline = upd.DeliveryDeadline
	}
	if missing := merged.Missing(to); len(missing) > 0 {
		return nil, &IncompleteTransitionError{OrderID: cur.ID, To: to, Missing: missing}
	}

	trackingChanged := merged.TrackingCode != cur.TrackingCode ||
		!sameTime(merged.DeliveryDeadline, cur.DeliveryDeadline)
	if to == cur.Status && !trackingChanged {
		return nil, nil
	}

	note := upd.Note
	if note == "" {
		if to == cur.Status {
			note = "tracking updated"
		} else {
			note = "status set to " + humanize(to)
		}
	}

	payment := cur.PaymentStatus
	switch to {
	case StatusPaid:
		if payment.Rank() < PaymentApproved.Rank() {
			payment = PaymentApproved
		}
	case StatusRefunded:
		payment = PaymentRefunded
	}

	return &Change{
		Status:           to,
		PaymentStatus:    payment,
		TrackingCode:     upd.TrackingCode,
		DeliveryDeadline: upd.DeliveryDeadline,
		Actor:            actor,
		Note:             note,
	}, nil
}

// CancelOrder moves the order to CANCELED. Canceling a canceled order is a
// successful no-op.
func (l *Lifecycle) CancelOrder(ctx context.Context, id int64, actor Actor, reason string) (*Order, error) {
	if reason == "" {
		reason = "order canceled"
	}
	return l.UpdateOrderStatus(ctx, id, StatusCanceled, StatusUpdate{Note: reason}, actor)
}

// AttachPayment links a gateway payment to an order still awaiting payment.
// A new payment may replace a failed one.
func (l *Lifecycle) AttachPayment(ctx context.Context, id int64, paymentID string, actor Actor) (_ *Order, rerr error) {
	ctx, span := l.tracer.Start(ctx, "order.AttachPayment", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("payment.id", paymentID),
	))
	defer func() { endSpan(span, rerr) }()

	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, &ValidationError{OrderID: id, Field: "payment_id", Reason: "payment id is required"}
	}

	o, applied, err := l.orders.ApplyTransition(ctx, id, func(cur *Order) (*Change, error) {
		if cur.PaymentID == paymentID {
			return nil, nil
		}
		if cur.Status != StatusPendingPayment {
			return nil, &ValidationError{OrderID: cur.ID, Field: "payment_id", Reason: "order is " + string(cur.Status) + ", not awaiting payment"}
		}
		if cur.PaymentID != "" && !cur.PaymentStatus.Failed() {
			return nil, &ValidationError{OrderID: cur.ID, Field: "payment_id", Reason: "payment " + cur.PaymentID + " is still " + string(cur.PaymentStatus)}
		}
		return &Change{
			Status:        cur.Status,
			PaymentStatus: PaymentPending,
			PaymentID:     paymentID,
			Actor:         actor,
			Note:          "payment attached",
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		zctx.From(ctx).Info("Payment attached",
			zap.Int64("order_id", id),
			zap.String("payment_id", paymentID),
		)
	}
	return o, nil
}

// GetOrder returns the order by id.
func (l *Lifecycle) GetOrder(ctx context.Context, id int64) (*Order, error) {
	return l.orders.Get(ctx, id)
}

// OrderByPaymentID returns the order linked to a gateway payment.
func (l *Lifecycle) OrderByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	return l.orders.FindByPaymentID(ctx, paymentID)
}

// History returns the audit trail of an order, oldest first.
func (l *Lifecycle) History(ctx context.Context, id int64) ([]Transition, error) {
	if _, err := l.orders.Get(ctx, id); err != nil {
		return nil, err
	}
	return l.orders.History(ctx, id)
}

// CustomerOrders returns all orders of a customer, newest first.
func (l *Lifecycle) CustomerOrders(ctx context.Context, customerID string) ([]Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, &ValidationError{Field: "customer_id", Reason: "customer id is required"}
	}
	return l.orders.ListByCustomer(ctx, customerID)
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ListOrders returns a page of orders, newest first, optionally filtered by
// status. A zero limit means the default page size.
func (l *Lifecycle) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: "unknown order status " + string(f.Status)}
	}
	switch {
	case f.Limit < 0 || f.Limit > maxPageSize:
		return nil, &ValidationError{Field: "limit", Reason: "limit must be between 1 and " + strconv.Itoa(maxPageSize)}
	case f.Limit == 0:
		f.Limit = defaultPageSize
	}
	if f.Offset < 0 {
		return nil, &ValidationError{Field: "offset", Reason: "offset must not be negative"}
	}
	return l.orders.List(ctx, f)
}

// notify runs after commit with its own deadline, detached from the caller's
// cancellation. Errors are logged and counted only.
func (l *Lifecycle) notify(ctx context.Context, o *Order, prev, next Status) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.notifyTimeout)
	defer cancel()

	if err := l.notifier.Notify(nctx, o.Clone(), prev, next); err != nil {
		l.notifyFails.Add(nctx, 1)
		zctx.From(ctx).Warn("Notification failed",
			zap.Int64("order_id", o.ID),
			zap.String("status", string(next)),
			zap.Error(err),
		)
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
