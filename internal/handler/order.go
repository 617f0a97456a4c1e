package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/lojavirtual/orderflow/internal/domain/order"
	"github.com/lojavirtual/orderflow/internal/idempotency"
	"github.com/lojavirtual/orderflow/internal/notify"
)

const checkoutScope = "checkout"

// Checkout places a customer order. Prices come from the catalog; client
// supplied prices are ignored. A repeated Idempotency-Key returns the order
// created by the first request.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := decodeCheckout(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	channel, err := order.ParseChannel(c.Channel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if channel == order.ChannelManual {
		writeError(w, r, badRequestf("channel %s is reserved for admin entry", channel))
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idem != nil {
		id, claimed, err := h.idem.Claim(ctx, checkoutScope, key)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			writeError(w, r, err)
			return
		case err != nil:
			zctx.From(ctx).Warn("Idempotency store unavailable, proceeding without it", zap.Error(err))
			key = ""
		case !claimed:
			o, err := h.engine.GetOrder(ctx, id)
			if err != nil {
				writeError(w, r, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			h.writeCheckout(w, http.StatusOK, o)
			return
		}
	}

	o, err := h.checkout(ctx, c, channel)
	if key != "" && h.idem != nil {
		h.finishKey(ctx, key, o, err)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCheckout(w, http.StatusCreated, o)
}

func (h *Handler) checkout(ctx context.Context, c *checkoutBody, channel order.Channel) (*order.Order, error) {
	entries := make([]order.CartEntry, len(c.Items))
	for i, it := range c.Items {
		entries[i] = order.CartEntry{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	payment, err := c.payment(channel)
	if err != nil {
		return nil, err
	}
	lines, err := h.engine.PriceCart(ctx, entries)
	if err != nil {
		return nil, err
	}
	return h.engine.CreateOrder(ctx, order.CreateOrderRequest{
		Lines:           lines,
		CustomerID:      c.CustomerID,
		Contact:         c.Contact,
		ShippingAddress: c.ShippingAddress,
		Payment:         payment,
		Channel:         channel,
		ExpectedTotal:   c.ExpectedTotal,
		Actor:           order.Actor{Kind: order.ActorCustomer, ID: c.CustomerID},
	})
}

// payment parses the payment block. WhatsApp hand-offs settle in the chat,
// so they default to PIX when no method is given.
func (c *checkoutBody) payment(channel order.Channel) (order.Payment, error) {
	raw := c.Method
	if raw == "" && channel == order.ChannelWhatsApp {
		raw = string(order.MethodPIX)
	}
	method, err := order.ParsePaymentMethod(raw)
	if err != nil {
		return order.Payment{}, err
	}
	return order.Payment{Method: method, PaymentID: c.PaymentID, Settled: c.Settled}, nil
}

// finishKey binds the key to the new order, or frees it so the client can
// retry after a failure.
func (h *Handler) finishKey(ctx context.Context, key string, o *order.Order, err error) {
	lg := zctx.From(ctx)
	if err != nil {
		if rerr := h.idem.Release(context.WithoutCancel(ctx), checkoutScope, key); rerr != nil {
			lg.Warn("Release idempotency key", zap.Error(rerr))
		}
		return
	}
	if cerr := h.idem.Complete(context.WithoutCancel(ctx), checkoutScope, key, o.ID); cerr != nil {
		lg.Warn("Complete idempotency key", zap.Int64("order_id", o.ID), zap.Error(cerr))
	}
}

func (h *Handler) writeCheckout(w http.ResponseWriter, status int, o *order.Order) {
	w.Header().Set("Location", "/api/orders/"+strconv.FormatInt(o.ID, 10))
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, o)
		if o.Channel == order.ChannelWhatsApp {
			e.FieldStart("whatsapp_url")
			e.Str(notify.WhatsAppLink(h.whatsApp, o))
		}
		e.ObjEnd()
	})
}

// GetOrder returns one order for status tracking. Contact details and the
// shipping address are only included when the customer_id query parameter
// matches the order's customer.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.engine.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	owner := ownsOrder(o, r.URL.Query().Get("customer_id"))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrderView(e, o, owner) })
}

func ownsOrder(o *order.Order, customerID string) bool {
	return o.CustomerID != "" && customerID == o.CustomerID
}

// AdminGetOrder returns one order with all its details.
func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.engine.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListOrders pages through all orders, newest first. Query parameters:
// status, limit, offset.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		f   order.ListFilter
		err error
	)
	if raw := q.Get("status"); raw != "" {
		if f.Status, err = order.ParseStatus(raw); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, r, err)
		return
	}

	orders, err := h.engine.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orders")
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
		e.FieldStart("offset")
		e.Int(f.Offset)
		e.ObjEnd()
	})
}

// CustomerOrders lists a customer's orders, newest first.
func (h *Handler) CustomerOrders(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	orders, err := h.engine.CustomerOrders(r.Context(), customerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orders")
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}

// AttachPayment records the gateway payment created for a pending order.
func (h *Handler) AttachPayment(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var paymentID, customerID string
	if err := decodeFields(body, map[string]*string{
		"payment_id":  &paymentID,
		"customer_id": &customerID,
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if paymentID == "" {
		writeError(w, r, &order.ValidationError{OrderID: id, Field: "payment_id", Reason: "payment id is required"})
		return
	}

	o, err := h.engine.AttachPayment(r.Context(), id, paymentID, order.Actor{Kind: order.ActorCustomer, ID: customerID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	owner := ownsOrder(o, customerID)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrderView(e, o, owner) })
}

// AdminCreateOrder records a manual order. Lines carry their own price and
// name; the order goes through the same creation path as a checkout.
func (h *Handler) AdminCreateOrder(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := decodeCheckout(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	channel := order.ChannelManual
	if c.Channel != "" {
		if channel, err = order.ParseChannel(c.Channel); err != nil {
			writeError(w, r, err)
			return
		}
	}

	lines := make([]order.Line, len(c.Items))
	for i, it := range c.Items {
		if it.UnitPrice == nil {
			writeError(w, r, &order.ValidationError{Field: "items.unit_price", Reason: "price is required for product " + it.ProductID})
			return
		}
		lines[i] = order.Line{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			UnitPrice: *it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}

	payment, err := c.payment(channel)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.engine.CreateOrder(r.Context(), order.CreateOrderRequest{
		Lines:           lines,
		CustomerID:      c.CustomerID,
		Contact:         c.Contact,
		ShippingAddress: c.ShippingAddress,
		Payment:         payment,
		Channel:         channel,
		ExpectedTotal:   c.ExpectedTotal,
		Actor:           adminActor(r.Context()),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+strconv.FormatInt(o.ID, 10))
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// UpdateStatus moves an order to the requested status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := decodeStatus(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := order.ParseStatus(s.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.engine.UpdateOrderStatus(r.Context(), id, to, order.StatusUpdate{
		TrackingCode:     s.TrackingCode,
		DeliveryDeadline: s.DeliveryDeadline,
		Note:             s.Note,
	}, adminActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// Cancel cancels an order. The body may carry a reason.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var reason string
	if err := decodeFields(body, map[string]*string{"reason": &reason}); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.engine.CancelOrder(r.Context(), id, adminActor(r.Context()), reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// History returns the audit trail of an order, oldest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ts, err := h.engine.History(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order_id")
		e.Int64(id)
		e.FieldStart("transitions")
		e.ArrStart()
		for _, t := range ts {
			encodeTransition(e, t)
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}
