package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/lojavirtual/orderflow/internal/domain/order"
	"github.com/lojavirtual/orderflow/internal/paymentsignal"
)

// PaymentWebhook receives gateway notifications. Only the payment id is
// trusted from the body; its status is fetched from the gateway. Non-payment
// topics are acknowledged and ignored. Failures answer non-2xx so the
// gateway redelivers.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var n paymentsignal.Notification
	if len(body) > 0 {
		if n, err = paymentsignal.ParseNotification(body); err != nil {
			writeError(w, r, &badRequest{msg: err.Error()})
			return
		}
	}
	q := r.URL.Query()
	if n.Type == "" {
		n.Type = q.Get("type")
		if n.Type == "" {
			n.Type = q.Get("topic")
		}
	}
	if n.DataID == "" {
		n.DataID = q.Get("data.id")
		if n.DataID == "" {
			n.DataID = q.Get("id")
		}
	}

	if !n.IsPayment() || n.DataID == "" {
		lg.Debug("Ignoring webhook", zap.String("type", n.Type), zap.String("action", n.Action))
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("outcome")
			e.Str("ignored")
			e.ObjEnd()
		})
		return
	}

	if err := h.payments.VerifySignature(r.Header.Get("X-Signature"), r.Header.Get("X-Request-Id"), n.DataID); err != nil {
		lg.Warn("Webhook signature rejected", zap.String("payment_id", n.DataID))
		writeError(w, r, err)
		return
	}

	res, err := h.payments.Deliver(ctx, n.DataID, order.Actor{Kind: order.ActorWebhook})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("outcome")
		e.Str(string(res.Outcome))
		e.FieldStart("order_id")
		e.Int64(res.Order.ID)
		e.FieldStart("status")
		e.Str(string(res.Order.Status))
		e.FieldStart("payment_status")
		e.Str(string(res.Order.PaymentStatus))
		if res.Attention != "" {
			e.FieldStart("attention")
			e.Str(res.Attention)
		}
		e.ObjEnd()
	})
}
