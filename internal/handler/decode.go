package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

// badRequest is a malformed body or parameter.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, &badRequest{msg: "request body too large"}
		}
		return nil, errors.Wrap(err, "read body")
	}
	return b, nil
}

func orderIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequestf("invalid order id %q", raw)
	}
	return id, nil
}

// intParam parses an optional non-negative query integer.
func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequestf("invalid integer %q", raw)
	}
	return n, nil
}

// checkoutBody is the payload of both customer checkout and admin manual
// entry. Admin lines carry their own name and price.
type checkoutBody struct {
	CustomerID      string
	Contact         order.Contact
	ShippingAddress string
	Method          string
	PaymentID       string
	Settled         bool
	Channel         string
	Items           []itemBody
	ExpectedTotal   *decimal.Decimal
}

type itemBody struct {
	ProductID string
	Name      string
	Image     string
	UnitPrice *decimal.Decimal
	Quantity  int
}

func decodeCheckout(b []byte) (*checkoutBody, error) {
	var c checkoutBody
	err := jx.DecodeBytes(b).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "customer_id":
			return decodeStr(d, &c.CustomerID)
		case "contact":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "name":
					return decodeStr(d, &c.Contact.Name)
				case "email":
					return decodeStr(d, &c.Contact.Email)
				case "phone":
					return decodeStr(d, &c.Contact.Phone)
				default:
					return d.Skip()
				}
			})
		case "shipping_address":
			return decodeStr(d, &c.ShippingAddress)
		case "payment":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "method":
					return decodeStr(d, &c.Method)
				case "payment_id":
					return decodeStr(d, &c.PaymentID)
				case "settled":
					v, err := d.Bool()
					c.Settled = v
					return err
				default:
					return d.Skip()
				}
			})
		case "channel":
			return decodeStr(d, &c.Channel)
		case "expected_total":
			v, err := decodeDecimal(d)
			c.ExpectedTotal = v
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				if err != nil {
					return err
				}
				c.Items = append(c.Items, it)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, &badRequest{msg: "malformed checkout body: " + err.Error()}
	}
	return &c, nil
}

func decodeItem(d *jx.Decoder) (itemBody, error) {
	var it itemBody
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			return decodeStr(d, &it.ProductID)
		case "name":
			return decodeStr(d, &it.Name)
		case "image":
			return decodeStr(d, &it.Image)
		case "unit_price":
			v, err := decodeDecimal(d)
			it.UnitPrice = v
			return err
		case "quantity":
			v, err := d.Int()
			it.Quantity = v
			return err
		default:
			return d.Skip()
		}
	})
	return it, err
}

type statusBody struct {
	Status           string
	TrackingCode     string
	DeliveryDeadline *time.Time
	Note             string
}

func decodeStatus(b []byte) (*statusBody, error) {
	var s statusBody
	err := jx.DecodeBytes(b).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			return decodeStr(d, &s.Status)
		case "tracking_code":
			return decodeStr(d, &s.TrackingCode)
		case "note", "notes":
			return decodeStr(d, &s.Note)
		case "delivery_deadline":
			var raw string
			if err := decodeStr(d, &raw); err != nil || raw == "" {
				return err
			}
			t, err := parseDeadline(raw)
			if err != nil {
				return err
			}
			s.DeliveryDeadline = &t
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, &badRequest{msg: "malformed status body: " + err.Error()}
	}
	return &s, nil
}

// decodeFields reads a flat object of optional string fields. An empty body
// yields no fields.
func decodeFields(b []byte, fields map[string]*string) error {
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	err := jx.DecodeBytes(b).Obj(func(d *jx.Decoder, key string) error {
		if dst, ok := fields[key]; ok {
			return decodeStr(d, dst)
		}
		return d.Skip()
	})
	if err != nil {
		return &badRequest{msg: "malformed body: " + err.Error()}
	}
	return nil
}

func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.Errorf("delivery_deadline %q is not a date", s)
	}
	return t, nil
}

func decodeStr(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	s, err := d.Str()
	*dst = strings.TrimSpace(s)
	return err
}

// decodeDecimal accepts money as a JSON number or string.
func decodeDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		raw = strings.Trim(n.String(), `"`)
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		raw = s
	default:
		return nil, errors.Errorf("unexpected %s for amount", d.Next())
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "amount %q", raw)
	}
	return &v, nil
}
