package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	encodeOrderView(e, o, true)
}

// encodeOrderView omits the contact and the shipping address when
// withContact is false.
func encodeOrderView(e *jx.Encoder, o *order.Order, withContact bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	if o.CustomerID != "" {
		e.FieldStart("customer_id")
		e.Str(o.CustomerID)
	}

	if withContact {
		e.FieldStart("contact")
		e.ObjStart()
		e.FieldStart("name")
		e.Str(o.Contact.Name)
		e.FieldStart("email")
		e.Str(o.Contact.Email)
		e.FieldStart("phone")
		e.Str(o.Contact.Phone)
		e.ObjEnd()

		e.FieldStart("shipping_address")
		e.Str(o.ShippingAddress)
	}

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("name")
		e.Str(it.Name)
		if it.Image != "" {
			e.FieldStart("image")
			e.Str(it.Image)
		}
		e.FieldStart("unit_price")
		e.Str(it.UnitPrice.StringFixed(2))
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("subtotal")
		e.Str(it.Subtotal.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("total")
	e.Str(o.Total.StringFixed(2))
	e.FieldStart("payment_method")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("payment_status")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("payment_status_label")
	e.Str(o.PaymentStatus.Label())
	if o.PaymentID != "" {
		e.FieldStart("payment_id")
		e.Str(o.PaymentID)
	}

	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("status_label")
	e.Str(o.Status.Label())
	e.FieldStart("status_tone")
	e.Str(string(o.Status.Tone()))
	e.FieldStart("allowed_transitions")
	encodeStatuses(e, order.AllowedTransitions(o.Status))

	e.FieldStart("channel")
	e.Str(string(o.Channel))
	if o.TrackingCode != "" {
		e.FieldStart("tracking_code")
		e.Str(o.TrackingCode)
	}
	if o.DeliveryDeadline != nil {
		e.FieldStart("delivery_deadline")
		e.Str(o.DeliveryDeadline.UTC().Format(time.RFC3339))
	}
	e.FieldStart("version")
	e.Int64(o.Version)
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("updated_at")
	e.Str(o.UpdatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeStatuses(e *jx.Encoder, ss []order.Status) {
	e.ArrStart()
	for _, s := range ss {
		e.Str(string(s))
	}
	e.ArrEnd()
}

func encodeTransition(e *jx.Encoder, t order.Transition) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(t.ID)
	e.FieldStart("previous_status")
	if t.FromStatus == "" {
		e.Null()
	} else {
		e.Str(string(t.FromStatus))
	}
	e.FieldStart("new_status")
	e.Str(string(t.ToStatus))
	e.FieldStart("new_status_label")
	e.Str(t.ToStatus.Label())
	if t.FromPayment != "" {
		e.FieldStart("previous_payment_status")
		e.Str(string(t.FromPayment))
	}
	e.FieldStart("payment_status")
	e.Str(string(t.ToPayment))
	if t.PaymentID != "" {
		e.FieldStart("payment_id")
		e.Str(t.PaymentID)
	}
	e.FieldStart("actor")
	e.Str(t.Actor.String())
	if t.Note != "" {
		e.FieldStart("note")
		e.Str(t.Note)
	}
	e.FieldStart("created_at")
	e.Str(t.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}
