package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/lojavirtual/orderflow/internal/domain/order"
	"github.com/lojavirtual/orderflow/internal/idempotency"
	"github.com/lojavirtual/orderflow/internal/paymentsignal"
)

// writeError maps err to a status code and a JSON error body. Unknown errors
// are logged and answered with 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := http.StatusInternalServerError, "internal"
	var extra func(e *jx.Encoder)

	var (
		badReq     *badRequest
		validation *order.ValidationError
		cart       *order.InvalidCartError
		incomplete *order.IncompleteTransitionError
		notFound   *order.NotFoundError
		illegal    *order.IllegalTransitionError
		unknownPS  *order.UnknownPaymentStatusError
		store      *order.StoreUnavailableError
	)
	switch {
	case errors.As(err, &badReq):
		status, kind = http.StatusBadRequest, "bad_request"
	case errors.As(err, &validation):
		status, kind = http.StatusBadRequest, "validation"
		extra = func(e *jx.Encoder) {
			e.FieldStart("field")
			e.Str(validation.Field)
		}
	case errors.As(err, &cart):
		status, kind = http.StatusBadRequest, "invalid_cart"
	case errors.As(err, &incomplete):
		status, kind = http.StatusBadRequest, "incomplete_transition"
		extra = func(e *jx.Encoder) {
			e.FieldStart("missing")
			e.ArrStart()
			for _, f := range incomplete.Missing {
				e.Str(string(f))
			}
			e.ArrEnd()
		}
	case errors.As(err, &notFound), errors.Is(err, paymentsignal.ErrPaymentNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.As(err, &illegal):
		status, kind = http.StatusConflict, "illegal_transition"
		extra = func(e *jx.Encoder) {
			e.FieldStart("from")
			e.Str(string(illegal.From))
			e.FieldStart("to")
			e.Str(string(illegal.To))
			e.FieldStart("allowed")
			encodeStatuses(e, illegal.Allowed)
		}
	case errors.Is(err, idempotency.ErrInProgress):
		status, kind = http.StatusConflict, "in_progress"
	case errors.As(err, &unknownPS):
		status, kind = http.StatusUnprocessableEntity, "unknown_payment_status"
	case errors.Is(err, paymentsignal.ErrBadSignature):
		status, kind = http.StatusUnauthorized, "bad_signature"
	case errors.As(err, &store), errors.Is(err, paymentsignal.ErrNoSignal):
		status, kind = http.StatusServiceUnavailable, "unavailable"
	}

	lg := zctx.From(r.Context())
	msg := err.Error()
	switch {
	case status >= 500:
		lg.Error("Request failed", zap.Error(err))
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	case kind == "unknown_payment_status":
		lg.Error("Unknown payment status from gateway", zap.Error(err))
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("error")
		e.Str(kind)
		e.FieldStart("message")
		e.Str(msg)
		if extra != nil {
			extra(e)
		}
		e.ObjEnd()
	})
}
