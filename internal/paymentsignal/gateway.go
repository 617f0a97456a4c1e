package paymentsignal

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoSignal means the gateway could not be asked in time. It is not a
// payment status; callers leave the order untouched and try again later.
var ErrNoSignal = errors.New("payment gateway unavailable")

// ErrPaymentNotFound means the gateway does not know the payment.
var ErrPaymentNotFound = errors.New("payment not found at gateway")

// GatewayPayment is the subset of a gateway payment the adapter needs.
type GatewayPayment struct {
	ID                string
	Status            string
	StatusDetail      string
	ExternalReference string
}

// Gateway looks up a payment by its gateway id.
type Gateway interface {
	LookupPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
}

// GatewayConfig configures the Mercado Pago client.
type GatewayConfig struct {
	BaseURL     string        `default:"https://api.mercadopago.com" usage:"Payment gateway API base URL"`
	AccessToken string        `usage:"Payment gateway access token" flag:"gateway-access-token"`
	Timeout     time.Duration `default:"5s" usage:"Payment gateway request timeout"`
}

var _ Gateway = (*MercadoPago)(nil)

// MercadoPago is a Gateway backed by the Mercado Pago payments API.
type MercadoPago struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewMercadoPago creates a client. Requests are traced with tp.
func NewMercadoPago(cfg GatewayConfig, tp trace.TracerProvider) *MercadoPago {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &MercadoPago{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(tp)),
		},
	}
}

// LookupPayment fetches GET /v1/payments/{id}.
func (m *MercadoPago) LookupPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	u := m.baseURL + "/v1/payments/" + url.PathEscape(paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.Wrapf(ErrNoSignal, "lookup payment %s: %v", paymentID, err)
		}
		return nil, errors.Wrapf(err, "lookup payment %s", paymentID)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(ErrPaymentNotFound, "payment %s", paymentID)
	case resp.StatusCode >= 500:
		return nil, errors.Wrapf(ErrNoSignal, "lookup payment %s: status %d", paymentID, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Errorf("lookup payment %s: unexpected status %d", paymentID, resp.StatusCode)
	}

	p, err := decodePayment(body)
	if err != nil {
		return nil, errors.Wrapf(err, "decode payment %s", paymentID)
	}
	return p, nil
}

func decodePayment(body []byte) (*GatewayPayment, error) {
	var p GatewayPayment
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			id, err := decodeID(d)
			p.ID = id
			return err
		case "status":
			s, err := d.Str()
			p.Status = s
			return err
		case "status_detail":
			return decodeOptionalStr(d, &p.StatusDetail)
		case "external_reference":
			return decodeOptionalStr(d, &p.ExternalReference)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	if p.Status == "" {
		return nil, errors.New("payment without status")
	}
	return &p, nil
}

// decodeID accepts ids sent either as JSON numbers or strings.
func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return strings.Trim(n.String(), `"`), nil
	case jx.String:
		return d.Str()
	default:
		return "", errors.Errorf("unexpected id type %s", d.Next())
	}
}

func decodeOptionalStr(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	s, err := d.Str()
	*dst = s
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
