// Package handler exposes the order lifecycle over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lojavirtual/orderflow/internal/domain/auth"
	"github.com/lojavirtual/orderflow/internal/domain/order"
	"github.com/lojavirtual/orderflow/internal/notify"
	"github.com/lojavirtual/orderflow/pkg/httpmiddleware"
)

// Engine is the order lifecycle as used by the HTTP layer.
type Engine interface {
	PriceCart(ctx context.Context, entries []order.CartEntry) ([]order.Line, error)
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.Order, error)
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	CustomerOrders(ctx context.Context, customerID string) ([]order.Order, error)
	ListOrders(ctx context.Context, f order.ListFilter) ([]order.Order, error)
	AttachPayment(ctx context.Context, id int64, paymentID string, actor order.Actor) (*order.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, to order.Status, upd order.StatusUpdate, actor order.Actor) (*order.Order, error)
	CancelOrder(ctx context.Context, id int64, actor order.Actor, reason string) (*order.Order, error)
	History(ctx context.Context, id int64) ([]order.Transition, error)
}

// Payments turns gateway webhooks into payment signals.
type Payments interface {
	VerifySignature(header, requestID, dataID string) error
	Deliver(ctx context.Context, paymentID string, actor order.Actor) (*order.SignalResult, error)
}

// Idempotency remembers checkout keys.
type Idempotency interface {
	Claim(ctx context.Context, scope, key string) (orderID int64, claimed bool, err error)
	Complete(ctx context.Context, scope, key string, orderID int64) error
	Release(ctx context.Context, scope, key string) error
}

// Config holds non-dependency handler settings.
type Config struct {
	WhatsApp     notify.WhatsAppConfig
	APIKeyPepper []byte
	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Handler serves the storefront, admin and webhook endpoints.
type Handler struct {
	engine   Engine
	payments Payments
	idem     Idempotency
	security *Security
	whatsApp notify.WhatsAppConfig
	maxBody  int64
}

// New creates a Handler. idem may be nil, in which case Idempotency-Key
// headers are ignored.
func New(cfg Config, engine Engine, payments Payments, idem Idempotency, apikeys auth.Repository) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		engine:   engine,
		payments: payments,
		idem:     idem,
		security: NewSecurity(apikeys, cfg.APIKeyPepper),
		whatsApp: cfg.WhatsApp,
		maxBody:  cfg.MaxBodyBytes,
	}
}

// Router builds the API routes under /api. mws run inside the router, so they
// can see the matched route pattern.
func (h *Handler) Router(mws ...httpmiddleware.Middleware) chi.Router {
	r := chi.NewRouter()
	r.Use(mws...)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/checkout", h.Checkout)
		r.Get("/orders/{id}", h.GetOrder)
		r.Post("/orders/{id}/payment", h.AttachPayment)
		r.Put("/orders/{id}/payment", h.AttachPayment)
		r.Get("/customers/{customerID}/orders", h.CustomerOrders)
		r.Post("/webhooks/payments", h.PaymentWebhook)

		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.security.Require(auth.ScopeOrdersRead))
				r.Get("/orders", h.ListOrders)
				r.Get("/orders/{id}", h.AdminGetOrder)
				r.Get("/orders/{id}/history", h.History)
			})

			r.Group(func(r chi.Router) {
				r.Use(h.security.Require(auth.ScopeOrdersAdmin))
				r.Post("/orders", h.AdminCreateOrder)
				r.Put("/orders/{id}/status", h.UpdateStatus)
				r.Post("/orders/{id}/cancel", h.Cancel)
			})
		})
	})
	return r
}
