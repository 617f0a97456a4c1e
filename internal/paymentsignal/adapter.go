package paymentsignal

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

// ErrBadSignature is returned when a webhook signature does not verify.
var ErrBadSignature = errors.New("invalid webhook signature")

// Engine is the part of the order lifecycle the adapter drives.
type Engine interface {
	RecordPaymentSignal(ctx context.Context, sig order.PaymentSignal) (*order.SignalResult, error)
	OrderByPaymentID(ctx context.Context, paymentID string) (*order.Order, error)
}

// Adapter resolves gateway payments into payment signals and records them.
type Adapter struct {
	gateway    Gateway
	normalizer *Normalizer
	engine     Engine
	secret     []byte
}

// NewAdapter creates an Adapter. An empty secret disables webhook signature
// verification.
func NewAdapter(gateway Gateway, normalizer *Normalizer, engine Engine, secret string) *Adapter {
	return &Adapter{
		gateway:    gateway,
		normalizer: normalizer,
		engine:     engine,
		secret:     []byte(secret),
	}
}

// Signal fetches the payment from the gateway and builds the normalized
// signal. The order is taken from the payment's external reference, falling
// back to the order the payment was attached to.
func (a *Adapter) Signal(ctx context.Context, paymentID string, actor order.Actor) (order.PaymentSignal, error) {
	p, err := a.gateway.LookupPayment(ctx, paymentID)
	if err != nil {
		return order.PaymentSignal{}, err
	}
	status, err := a.normalizer.Normalize(p.Status)
	if err != nil {
		return order.PaymentSignal{}, err
	}
	if p.ID == "" {
		p.ID = paymentID
	}

	orderID, err := strconv.ParseInt(strings.TrimSpace(p.ExternalReference), 10, 64)
	if err != nil || orderID <= 0 {
		o, err := a.engine.OrderByPaymentID(ctx, p.ID)
		if err != nil {
			return order.PaymentSignal{}, err
		}
		orderID = o.ID
	}

	detail := p.Status
	if p.StatusDetail != "" {
		detail += "/" + p.StatusDetail
	}
	return order.PaymentSignal{
		OrderID:   orderID,
		PaymentID: p.ID,
		Status:    status,
		Actor:     actor,
		Detail:    a.normalizer.Provider() + " " + detail,
	}, nil
}

// Deliver resolves and records the payment in one step.
func (a *Adapter) Deliver(ctx context.Context, paymentID string, actor order.Actor) (*order.SignalResult, error) {
	sig, err := a.Signal(ctx, paymentID, actor)
	if err != nil {
		return nil, err
	}
	return a.engine.RecordPaymentSignal(ctx, sig)
}

// VerifySignature checks a Mercado Pago style x-signature header
// ("ts=...,v1=...") against the manifest "id:<data id>;request-id:<id>;ts:<ts>;".
func (a *Adapter) VerifySignature(header, requestID, dataID string) error {
	if len(a.secret) == 0 {
		return nil
	}
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return ErrBadSignature
	}

	want, err := hex.DecodeString(v1)
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal(want, Sign(a.secret, dataID, requestID, ts)) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the signature for the given manifest parts.
func Sign(secret []byte, dataID, requestID, ts string) []byte {
	var b strings.Builder
	b.WriteString("id:" + strings.ToLower(dataID) + ";")
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(b.String()))
	return mac.Sum(nil)
}
