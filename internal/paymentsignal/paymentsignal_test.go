package paymentsignal

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/lojavirtual/orderflow/internal/domain/order"
	"github.com/lojavirtual/orderflow/internal/storage/memory"
)

// --- Test doubles ---

type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]*GatewayPayment
	err      error
	calls    int
}

func (g *fakeGateway) LookupPayment(_ context.Context, id string) (*GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

// --- Helpers ---

func newEngine(t *testing.T) (*order.Lifecycle, *memory.OrderStore) {
	t.Helper()
	store := memory.NewOrderStore()
	l, err := order.NewLifecycle(store, order.Options{})
	require.NoError(t, err)
	return l, store
}

func placeOrder(t *testing.T, l *order.Lifecycle, paymentID string) *order.Order {
	t.Helper()
	o, err := l.CreateOrder(context.Background(), order.CreateOrderRequest{
		Lines:           []order.Line{{ProductID: "A", Name: "Camiseta", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 1}},
		Contact:         order.Contact{Name: "Ana"},
		ShippingAddress: "Rua das Flores, 10",
		Payment:         order.Payment{Method: order.MethodPIX, PaymentID: paymentID},
	})
	require.NoError(t, err)
	return o
}

func mercadoPago() *Normalizer { return NewNormalizer("mercadopago", MercadoPagoStatuses) }

// --- Normalizer ---

func TestNormalize(t *testing.T) {
	n := mercadoPago()
	tests := map[string]order.PaymentStatus{
		"pending":      order.PaymentPending,
		"in_process":   order.PaymentInProcess,
		"APPROVED":     order.PaymentApproved,
		" rejected ":   order.PaymentRejected,
		"cancelled":    order.PaymentCanceled,
		"refunded":     order.PaymentRefunded,
		"charged_back": order.PaymentRefunded,
	}
	for raw, want := range tests {
		got, err := n.Normalize(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestNormalize_UnknownFailsLoudly(t *testing.T) {
	_, err := mercadoPago().Normalize("mystery")
	var uErr *order.UnknownPaymentStatusError
	require.ErrorAs(t, err, &uErr)
	assert.Equal(t, "mercadopago", uErr.Provider)
	assert.Equal(t, "mystery", uErr.Raw)
}

// --- Gateway client ---

func TestMercadoPago_LookupPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/payments/123":
			_, _ = w.Write([]byte(`{"id":123,"status":"approved","status_detail":"accredited","external_reference":"42","payer":{"email":"x"}}`))
		case "/v1/payments/500":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	gw := NewMercadoPago(GatewayConfig{BaseURL: srv.URL, AccessToken: "tok", Timeout: time.Second}, tracenoop.NewTracerProvider())

	p, err := gw.LookupPayment(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, &GatewayPayment{ID: "123", Status: "approved", StatusDetail: "accredited", ExternalReference: "42"}, p)

	_, err = gw.LookupPayment(context.Background(), "missing")
	require.ErrorIs(t, err, ErrPaymentNotFound)

	_, err = gw.LookupPayment(context.Background(), "500")
	require.ErrorIs(t, err, ErrNoSignal)
}

func TestMercadoPago_TimeoutIsNoSignal(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	gw := NewMercadoPago(GatewayConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, tracenoop.NewTracerProvider())
	_, err := gw.LookupPayment(context.Background(), "1")
	require.ErrorIs(t, err, ErrNoSignal)
}

// --- Webhook parsing and signatures ---

func TestParseNotification(t *testing.T) {
	n, err := ParseNotification([]byte(`{"action":"payment.updated","type":"payment","data":{"id":"98765"},"live_mode":true}`))
	require.NoError(t, err)
	assert.True(t, n.IsPayment())
	assert.Equal(t, "98765", n.DataID)

	n, err = ParseNotification([]byte(`{"type":"payment","data":{"id":98765}}`))
	require.NoError(t, err)
	assert.Equal(t, "98765", n.DataID)

	n, err = ParseNotification([]byte(`{"type":"merchant_order","data":{"id":"1"}}`))
	require.NoError(t, err)
	assert.False(t, n.IsPayment())

	_, err = ParseNotification([]byte(`not json`))
	require.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	a := NewAdapter(nil, mercadoPago(), nil, "s3cret")
	sig := hex.EncodeToString(Sign([]byte("s3cret"), "98765", "req-1", "1704908010"))

	require.NoError(t, a.VerifySignature("ts=1704908010,v1="+sig, "req-1", "98765"))
	require.ErrorIs(t, a.VerifySignature("ts=1704908010,v1="+sig, "req-2", "98765"), ErrBadSignature)
	require.ErrorIs(t, a.VerifySignature("ts=1704908011,v1="+sig, "req-1", "98765"), ErrBadSignature)
	require.ErrorIs(t, a.VerifySignature("garbage", "req-1", "98765"), ErrBadSignature)

	open := NewAdapter(nil, mercadoPago(), nil, "")
	require.NoError(t, open.VerifySignature("", "", ""))
}

// --- Adapter ---

func TestAdapter_DeliverByExternalReference(t *testing.T) {
	l, _ := newEngine(t)
	o := placeOrder(t, l, "")
	gw := &fakeGateway{payments: map[string]*GatewayPayment{
		"mp-1": {ID: "mp-1", Status: "approved", ExternalReference: "1"},
	}}
	a := NewAdapter(gw, mercadoPago(), l, "")

	res, err := a.Deliver(context.Background(), "mp-1", order.Actor{Kind: order.ActorWebhook})
	require.NoError(t, err)
	assert.Equal(t, o.ID, res.Order.ID)
	assert.Equal(t, order.StatusPaid, res.Order.Status)
	assert.Equal(t, "mp-1", res.Order.PaymentID)
}

func TestAdapter_DeliverByPaymentID(t *testing.T) {
	l, _ := newEngine(t)
	o := placeOrder(t, l, "mp-7")
	gw := &fakeGateway{payments: map[string]*GatewayPayment{
		"mp-7": {ID: "mp-7", Status: "rejected", StatusDetail: "cc_rejected_insufficient_amount"},
	}}
	a := NewAdapter(gw, mercadoPago(), l, "")

	res, err := a.Deliver(context.Background(), "mp-7", order.Actor{Kind: order.ActorWebhook})
	require.NoError(t, err)
	assert.Equal(t, o.ID, res.Order.ID)
	assert.Equal(t, order.PaymentRejected, res.Order.PaymentStatus)
	assert.Equal(t, order.StatusPendingPayment, res.Order.Status)
}

func TestAdapter_UnknownOrder(t *testing.T) {
	l, _ := newEngine(t)
	gw := &fakeGateway{payments: map[string]*GatewayPayment{"mp-9": {ID: "mp-9", Status: "approved"}}}
	a := NewAdapter(gw, mercadoPago(), l, "")

	_, err := a.Deliver(context.Background(), "mp-9", order.Actor{Kind: order.ActorWebhook})
	var nf *order.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestAdapter_UnknownStatus(t *testing.T) {
	l, _ := newEngine(t)
	placeOrder(t, l, "mp-1")
	gw := &fakeGateway{payments: map[string]*GatewayPayment{"mp-1": {ID: "mp-1", Status: "whatever"}}}
	a := NewAdapter(gw, mercadoPago(), l, "")

	_, err := a.Deliver(context.Background(), "mp-1", order.Actor{Kind: order.ActorWebhook})
	var uErr *order.UnknownPaymentStatusError
	require.ErrorAs(t, err, &uErr)
}

// --- Poller ---

func TestPoller_Reconcile(t *testing.T) {
	l, store := newEngine(t)
	paid := placeOrder(t, l, "mp-1")
	waiting := placeOrder(t, l, "mp-2")
	placeOrder(t, l, "") // no payment attached, skipped

	gw := &fakeGateway{payments: map[string]*GatewayPayment{
		"mp-1": {ID: "mp-1", Status: "approved"},
		"mp-2": {ID: "mp-2", Status: "in_process"},
	}}
	p := NewPoller(NewAdapter(gw, mercadoPago(), l, ""), store, PollerConfig{BatchSize: 10, Concurrency: 2})
	p.now = func() time.Time { return time.Now().Add(time.Hour) }

	n, err := p.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, gw.calls)

	got, err := l.GetOrder(context.Background(), paid.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)

	history, err := l.History(context.Background(), paid.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ActorPoller, history[len(history)-1].Actor.Kind)

	got, err = l.GetOrder(context.Background(), waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentInProcess, got.PaymentStatus)
	assert.Equal(t, order.StatusPendingPayment, got.Status)
}

func TestPoller_FailedPaymentsDoNotStarveBatch(t *testing.T) {
	l, store := newEngine(t)
	placeOrder(t, l, "mp-dead-1")
	placeOrder(t, l, "mp-dead-2")
	live := placeOrder(t, l, "mp-live")

	gw := &fakeGateway{payments: map[string]*GatewayPayment{
		"mp-dead-1": {ID: "mp-dead-1", Status: "rejected"},
		"mp-dead-2": {ID: "mp-dead-2", Status: "rejected"},
		"mp-live":   {ID: "mp-live", Status: "approved"},
	}}
	p := NewPoller(NewAdapter(gw, mercadoPago(), l, ""), store, PollerConfig{BatchSize: 2, Concurrency: 1})
	p.now = func() time.Time { return time.Now().Add(time.Hour) }

	for range 3 {
		_, err := p.Reconcile(context.Background())
		require.NoError(t, err)
	}

	got, err := l.GetOrder(context.Background(), live.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	// Rejected orders are looked up once and then left alone.
	assert.Equal(t, 3, gw.calls)
}

func TestPoller_GatewayDownLeavesOrders(t *testing.T) {
	l, store := newEngine(t)
	o := placeOrder(t, l, "mp-1")

	gw := &fakeGateway{err: errors.Wrap(ErrNoSignal, "timeout")}
	p := NewPoller(NewAdapter(gw, mercadoPago(), l, ""), store, PollerConfig{})
	p.now = func() time.Time { return time.Now().Add(time.Hour) }

	_, err := p.Reconcile(context.Background())
	require.NoError(t, err)

	got, err := l.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPending, got.PaymentStatus)
	assert.Equal(t, int64(1), got.Version)
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	_, store := newEngine(t)
	p := NewPoller(NewAdapter(&fakeGateway{}, mercadoPago(), nil, ""), store, PollerConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
