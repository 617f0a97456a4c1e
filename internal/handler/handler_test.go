package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojavirtual/orderflow/internal/domain/auth"
	"github.com/lojavirtual/orderflow/internal/domain/order"
	"github.com/lojavirtual/orderflow/internal/domain/product"
	"github.com/lojavirtual/orderflow/internal/idempotency"
	"github.com/lojavirtual/orderflow/internal/notify"
	"github.com/lojavirtual/orderflow/internal/paymentsignal"
	"github.com/lojavirtual/orderflow/internal/storage/memory"
)

const (
	testPepper  = "pepper"
	adminKey    = "admin-secret"
	readOnlyKey = "reader-secret"
)

// --- Mock implementations ---

type mockAPIKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
	err  error
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return info, nil
}

type mockPayments struct {
	engine    *order.Lifecycle
	status    order.PaymentStatus
	err       error
	sigErr    error
	delivered []string
}

func (m *mockPayments) VerifySignature(_, _, _ string) error { return m.sigErr }

func (m *mockPayments) Deliver(ctx context.Context, paymentID string, actor order.Actor) (*order.SignalResult, error) {
	m.delivered = append(m.delivered, paymentID)
	if m.err != nil {
		return nil, m.err
	}
	o, err := m.engine.OrderByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return m.engine.RecordPaymentSignal(ctx, order.PaymentSignal{
		OrderID:   o.ID,
		PaymentID: paymentID,
		Status:    m.status,
		Actor:     actor,
	})
}

// --- Helpers ---

type fixture struct {
	srv      *httptest.Server
	engine   *order.Lifecycle
	payments *mockPayments
	apikeys  *mockAPIKeyRepo
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog := memory.NewCatalog(
		product.Product{ID: "A", Name: "Camiseta", Price: decimal.RequireFromString("10.00"), Active: true},
		product.Product{ID: "B", Name: "Caneca", Price: decimal.RequireFromString("5.00"), Active: true},
		product.Product{ID: "OLD", Name: "Fora de linha", Price: decimal.RequireFromString("1.00")},
	)
	engine, err := order.NewLifecycle(memory.NewOrderStore(), order.Options{Catalog: catalog})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	apikeys := &mockAPIKeyRepo{keys: map[string]*auth.APIKeyInfo{}}
	for key, scope := range map[string]string{adminKey: auth.ScopeOrdersAdmin, readOnlyKey: auth.ScopeOrdersRead} {
		hash := auth.HashKey(key, []byte(testPepper))
		apikeys.keys[hash] = &auth.APIKeyInfo{ID: key, KeyHash: hash, Name: "key-" + scope, Scopes: []string{scope}}
	}

	payments := &mockPayments{engine: engine, status: order.PaymentApproved}
	h := New(Config{
		WhatsApp:     notify.WhatsAppConfig{Number: "5511999999999", Store: "Loja"},
		APIKeyPepper: []byte(testPepper),
	}, engine, payments, idempotency.New(client, idempotency.Config{}), apikeys)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, engine: engine, payments: payments, apikeys: apikeys, redis: mr}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (int, http.Header, map[string]jx.Raw) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	out := map[string]jx.Raw{}
	d := jx.Decode(resp.Body, 1024)
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		out[key] = append(jx.Raw(nil), raw...)
		return err
	}))
	return resp.StatusCode, resp.Header, out
}

func str(t *testing.T, raw jx.Raw) string {
	t.Helper()
	s, err := jx.DecodeBytes(raw).Str()
	require.NoError(t, err)
	return s
}

func field(t *testing.T, raw jx.Raw, key string) jx.Raw {
	t.Helper()
	var out jx.Raw
	require.NoError(t, jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, k string) error {
		if k != key {
			return d.Skip()
		}
		v, err := d.Raw()
		out = append(jx.Raw(nil), v...)
		return err
	}))
	return out
}

const checkoutJSON = `{
	"customer_id": "cust-1",
	"contact": {"name": "Ana", "email": "ana@example.com"},
	"shipping_address": "Rua das Flores, 10",
	"payment": {"method": "pix", "payment_id": "mp-1"},
	"items": [
		{"product_id": "A", "quantity": 2, "unit_price": 0.01},
		{"product_id": "B", "quantity": 1}
	]
}`

func (f *fixture) checkout(t *testing.T) int64 {
	t.Helper()
	code, _, body := f.do(t, http.MethodPost, "/api/checkout", checkoutJSON)
	require.Equal(t, http.StatusCreated, code)
	id, err := jx.DecodeBytes(field(t, body["order"], "id")).Int64()
	require.NoError(t, err)
	return id
}

func path(id int64, suffix string) string {
	return "/api/orders/" + strconv.FormatInt(id, 10) + suffix
}

func adminPath(id int64, suffix string) string {
	return "/api/admin/orders/" + strconv.FormatInt(id, 10) + suffix
}

// --- Checkout ---

func TestCheckout_PricesFromCatalog(t *testing.T) {
	f := newFixture(t)
	code, hdr, body := f.do(t, http.MethodPost, "/api/checkout", checkoutJSON)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "/api/orders/1", hdr.Get("Location"))

	o := body["order"]
	assert.Equal(t, "25.00", str(t, field(t, o, "total")))
	assert.Equal(t, "PENDING_PAYMENT", str(t, field(t, o, "status")))
	assert.Equal(t, "PIX", str(t, field(t, o, "payment_method")))
	assert.NotContains(t, body, "whatsapp_url")
}

func TestCheckout_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		kind string
	}{
		{name: "malformed", body: `{"items":`, code: http.StatusBadRequest, kind: "bad_request"},
		{name: "empty cart", body: `{"contact":{"name":"Ana"},"shipping_address":"x","payment":{"method":"PIX"},"items":[]}`, code: http.StatusBadRequest, kind: "invalid_cart"},
		{name: "inactive product", body: `{"contact":{"name":"Ana"},"shipping_address":"x","payment":{"method":"PIX"},"items":[{"product_id":"OLD","quantity":1}]}`, code: http.StatusBadRequest, kind: "invalid_cart"},
		{name: "bad method", body: `{"contact":{"name":"Ana"},"shipping_address":"x","payment":{"method":"BITCOIN"},"items":[{"product_id":"A","quantity":1}]}`, code: http.StatusBadRequest, kind: "validation"},
		{name: "total mismatch", body: `{"contact":{"name":"Ana"},"shipping_address":"x","payment":{"method":"PIX"},"expected_total":"9.99","items":[{"product_id":"A","quantity":1}]}`, code: http.StatusBadRequest, kind: "validation"},
		{name: "customer settled", body: `{"contact":{"name":"Ana"},"shipping_address":"x","payment":{"method":"PIX","settled":true},"items":[{"product_id":"A","quantity":1}]}`, code: http.StatusBadRequest, kind: "validation"},
		{name: "manual channel", body: `{"channel":"MANUAL","contact":{"name":"Ana"},"shipping_address":"x","payment":{"method":"PIX"},"items":[{"product_id":"A","quantity":1}]}`, code: http.StatusBadRequest, kind: "bad_request"},
	}
	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, body := f.do(t, http.MethodPost, "/api/checkout", tt.body)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.kind, str(t, body["error"]))
		})
	}
}

func TestCheckout_IdempotencyKey(t *testing.T) {
	f := newFixture(t)

	code, _, first := f.do(t, http.MethodPost, "/api/checkout", checkoutJSON, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, code)

	code, hdr, second := f.do(t, http.MethodPost, "/api/checkout", checkoutJSON, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "true", hdr.Get("Idempotent-Replayed"))
	assert.Equal(t, string(field(t, first["order"], "id")), string(field(t, second["order"], "id")))

	orders, err := f.engine.CustomerOrders(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCheckout_FailedAttemptReleasesKey(t *testing.T) {
	f := newFixture(t)
	bad := strings.Replace(checkoutJSON, `"pix"`, `"BITCOIN"`, 1)

	code, _, _ := f.do(t, http.MethodPost, "/api/checkout", bad, "Idempotency-Key", "k-2")
	require.Equal(t, http.StatusBadRequest, code)

	code, _, _ = f.do(t, http.MethodPost, "/api/checkout", checkoutJSON, "Idempotency-Key", "k-2")
	assert.Equal(t, http.StatusCreated, code)
}

func TestCheckout_RedisDownStillCreates(t *testing.T) {
	f := newFixture(t)
	f.redis.Close()

	code, _, _ := f.do(t, http.MethodPost, "/api/checkout", checkoutJSON, "Idempotency-Key", "k-3")
	assert.Equal(t, http.StatusCreated, code)
}

func TestCheckout_WhatsApp(t *testing.T) {
	f := newFixture(t)
	body := `{"channel":"whatsapp","contact":{"name":"Ana"},"shipping_address":"Retirada","items":[{"product_id":"A","quantity":1}]}`

	code, _, resp := f.do(t, http.MethodPost, "/api/checkout", body)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "WHATSAPP", str(t, field(t, resp["order"], "channel")))
	assert.True(t, strings.HasPrefix(str(t, resp["whatsapp_url"]), "https://wa.me/5511999999999?text="))
}

// --- Customer reads ---

func TestGetOrder(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t)

	code, _, body := f.do(t, http.MethodGet, path(id, ""), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Aguardando pagamento", str(t, body["status_label"]))
	assert.JSONEq(t, `["PAID","CANCELED","REFUNDED"]`, string(body["allowed_transitions"]))
	assert.NotContains(t, body, "contact")
	assert.NotContains(t, body, "shipping_address")

	code, _, body = f.do(t, http.MethodGet, path(id, "?customer_id=cust-2"), "")
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, body, "contact")

	code, _, body = f.do(t, http.MethodGet, path(id, "?customer_id=cust-1"), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ana@example.com", str(t, field(t, body["contact"], "email")))
	assert.Equal(t, "Rua das Flores, 10", str(t, body["shipping_address"]))

	code, _, _ = f.do(t, http.MethodGet, "/api/orders/999", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _, _ = f.do(t, http.MethodGet, "/api/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCustomerOrders(t *testing.T) {
	f := newFixture(t)
	f.checkout(t)
	f.checkout(t)

	code, _, body := f.do(t, http.MethodGet, "/api/customers/cust-1/orders", "")
	require.Equal(t, http.StatusOK, code)
	var n int
	require.NoError(t, jx.DecodeBytes(body["orders"]).Arr(func(d *jx.Decoder) error {
		n++
		return d.Skip()
	}))
	assert.Equal(t, 2, n)
}

func TestAttachPayment(t *testing.T) {
	f := newFixture(t)
	body := strings.Replace(checkoutJSON, `, "payment_id": "mp-1"`, "", 1)
	code, _, resp := f.do(t, http.MethodPost, "/api/checkout", body)
	require.Equal(t, http.StatusCreated, code)
	id, err := jx.DecodeBytes(field(t, resp["order"], "id")).Int64()
	require.NoError(t, err)

	code, _, resp = f.do(t, http.MethodPost, path(id, "/payment"), `{"payment_id":"mp-2","customer_id":"cust-1"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "mp-2", str(t, resp["payment_id"]))

	code, _, resp = f.do(t, http.MethodPost, path(id, "/payment"), `{"payment_id":"mp-3"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "payment_id", str(t, resp["field"]))

	code, _, resp = f.do(t, http.MethodPost, path(id, "/payment"), `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "payment_id", str(t, resp["field"]))
}

// --- Admin ---

func TestAdmin_RequiresKey(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t)

	code, _, _ := f.do(t, http.MethodPost, adminPath(id, "/cancel"), "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _, _ = f.do(t, http.MethodPost, adminPath(id, "/cancel"), "", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _, _ = f.do(t, http.MethodPost, adminPath(id, "/cancel"), "", "X-API-Key", readOnlyKey)
	assert.Equal(t, http.StatusForbidden, code)

	code, _, _ = f.do(t, http.MethodGet, adminPath(id, "/history"), "", "X-API-Key", readOnlyKey)
	assert.Equal(t, http.StatusOK, code)

	f.apikeys.err = errors.New("db down")
	code, _, _ = f.do(t, http.MethodGet, adminPath(id, "/history"), "", "Authorization", "Bearer "+adminKey)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestAdmin_ShipFlow(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t)
	key := []string{"X-API-Key", adminKey}

	code, _, _ := f.do(t, http.MethodPut, adminPath(id, "/status"), `{"status":"PAID"}`, key...)
	require.Equal(t, http.StatusOK, code)

	code, _, body := f.do(t, http.MethodPut, adminPath(id, "/status"), `{"status":"SHIPPED"}`, key...)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "incomplete_transition", str(t, body["error"]))
	assert.JSONEq(t, `["tracking_code","delivery_deadline"]`, string(body["missing"]))

	code, _, body = f.do(t, http.MethodPut, adminPath(id, "/status"),
		`{"status":"shipped","tracking_code":"BR123","delivery_deadline":"2026-03-10"}`, key...)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "SHIPPED", str(t, body["status"]))
	assert.Equal(t, "BR123", str(t, body["tracking_code"]))
	assert.Equal(t, "2026-03-10T00:00:00Z", str(t, body["delivery_deadline"]))

	code, _, _ = f.do(t, http.MethodPut, adminPath(id, "/status"), `{"status":"DELIVERED"}`, key...)
	require.Equal(t, http.StatusOK, code)

	code, _, body = f.do(t, http.MethodPost, adminPath(id, "/cancel"), `{"reason":"cliente desistiu"}`, key...)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "illegal_transition", str(t, body["error"]))
	assert.JSONEq(t, `[]`, string(body["allowed"]))

	code, _, body = f.do(t, http.MethodGet, adminPath(id, "/history"), "", key...)
	require.Equal(t, http.StatusOK, code)
	var actors []string
	require.NoError(t, jx.DecodeBytes(body["transitions"]).Arr(func(d *jx.Decoder) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		actors = append(actors, str(t, field(t, raw, "actor")))
		return nil
	}))
	assert.Equal(t, []string{"customer:cust-1", "admin:key-orders:admin", "admin:key-orders:admin", "admin:key-orders:admin"}, actors)
}

func TestAdmin_GetOrderShowsContact(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t)

	code, _, _ := f.do(t, http.MethodGet, adminPath(id, ""), "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _, body := f.do(t, http.MethodGet, adminPath(id, ""), "", "X-API-Key", readOnlyKey)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ana", str(t, field(t, body["contact"], "name")))
}

func TestAdmin_ListOrders(t *testing.T) {
	f := newFixture(t)
	first := f.checkout(t)
	second := f.checkout(t)
	third := f.checkout(t)
	key := []string{"X-API-Key", readOnlyKey}

	_, err := f.engine.CancelOrder(context.Background(), second, order.Actor{Kind: order.ActorAdmin, ID: "ops"}, "")
	require.NoError(t, err)

	ids := func(body map[string]jx.Raw) []int64 {
		var out []int64
		require.NoError(t, jx.DecodeBytes(body["orders"]).Arr(func(d *jx.Decoder) error {
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			id, err := jx.DecodeBytes(field(t, raw, "id")).Int64()
			out = append(out, id)
			return err
		}))
		return out
	}

	code, _, body := f.do(t, http.MethodGet, "/api/admin/orders", "", key...)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []int64{third, second, first}, ids(body))

	code, _, body = f.do(t, http.MethodGet, "/api/admin/orders?status=PENDING_PAYMENT&limit=1&offset=1", "", key...)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []int64{first}, ids(body))

	code, _, body = f.do(t, http.MethodGet, "/api/admin/orders?status=canceled", "", key...)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []int64{second}, ids(body))

	tests := []struct {
		query string
		kind  string
	}{
		{"?status=LOST", "validation"},
		{"?limit=1000", "validation"},
		{"?limit=abc", "bad_request"},
		{"?offset=-1", "bad_request"},
	}
	for _, tt := range tests {
		code, _, body := f.do(t, http.MethodGet, "/api/admin/orders"+tt.query, "", key...)
		assert.Equal(t, http.StatusBadRequest, code, tt.query)
		assert.Equal(t, tt.kind, str(t, body["error"]), tt.query)
	}

	code, _, _ = f.do(t, http.MethodGet, "/api/admin/orders", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAdmin_UnknownStatus(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t)
	code, _, body := f.do(t, http.MethodPut, adminPath(id, "/status"), `{"status":"LOST"}`, "X-API-Key", adminKey)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "status", str(t, body["field"]))
}

func TestAdmin_ManualEntry(t *testing.T) {
	f := newFixture(t)
	body := `{
		"contact": {"name": "Balcão"},
		"shipping_address": "Retirada na loja",
		"payment": {"method": "CARD", "settled": true},
		"items": [{"product_id": "X", "name": "Avulso", "unit_price": "12.50", "quantity": 2}]
	}`
	code, _, resp := f.do(t, http.MethodPost, "/api/admin/orders", body, "X-API-Key", adminKey)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "PAID", str(t, resp["status"]))
	assert.Equal(t, "APPROVED", str(t, resp["payment_status"]))
	assert.Equal(t, "MANUAL", str(t, resp["channel"]))
	assert.Equal(t, "25.00", str(t, resp["total"]))

	noPrice := strings.Replace(body, `"unit_price": "12.50", `, "", 1)
	code, _, _ = f.do(t, http.MethodPost, "/api/admin/orders", noPrice, "X-API-Key", adminKey)
	assert.Equal(t, http.StatusBadRequest, code)
}

// --- Webhook ---

func TestWebhook_ApprovesPayment(t *testing.T) {
	f := newFixture(t)
	id := f.checkout(t)

	code, _, body := f.do(t, http.MethodPost, "/api/webhooks/payments", `{"type":"payment","data":{"id":"mp-1"}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "applied", str(t, body["outcome"]))
	assert.Equal(t, "PAID", str(t, body["status"]))

	code, _, body = f.do(t, http.MethodPost, "/api/webhooks/payments", `{"type":"payment","data":{"id":"mp-1"}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "duplicate", str(t, body["outcome"]))

	h, err := f.engine.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, order.ActorWebhook, h[1].Actor.Kind)
}

func TestWebhook_QueryParamsAndIgnoredTopics(t *testing.T) {
	f := newFixture(t)
	f.checkout(t)

	code, _, body := f.do(t, http.MethodPost, "/api/webhooks/payments?type=payment&data.id=mp-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "applied", str(t, body["outcome"]))

	code, _, body = f.do(t, http.MethodPost, "/api/webhooks/payments", `{"type":"merchant_order","data":{"id":"5"}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ignored", str(t, body["outcome"]))
	assert.Equal(t, []string{"mp-1"}, f.payments.delivered)
}

func TestWebhook_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *mockPayments)
		body  string
		code  int
	}{
		{name: "unknown order", body: `{"type":"payment","data":{"id":"nope"}}`, code: http.StatusNotFound},
		{name: "bad signature", setup: func(p *mockPayments) { p.sigErr = paymentsignal.ErrBadSignature }, body: `{"type":"payment","data":{"id":"mp-1"}}`, code: http.StatusUnauthorized},
		{name: "gateway down", setup: func(p *mockPayments) { p.err = errors.Wrap(paymentsignal.ErrNoSignal, "timeout") }, body: `{"type":"payment","data":{"id":"mp-1"}}`, code: http.StatusServiceUnavailable},
		{name: "unknown status", setup: func(p *mockPayments) { p.err = &order.UnknownPaymentStatusError{Raw: "weird"} }, body: `{"type":"payment","data":{"id":"mp-1"}}`, code: http.StatusUnprocessableEntity},
		{name: "malformed", body: `{"type":`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.checkout(t)
			if tt.setup != nil {
				tt.setup(f.payments)
			}
			code, _, _ := f.do(t, http.MethodPost, "/api/webhooks/payments", tt.body)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	code, _, body := f.do(t, http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "route not found", str(t, body["message"]))
}
