package paymentsignal

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Notification is a gateway webhook body: {"type":"payment","data":{"id":...}}.
type Notification struct {
	Type   string
	Action string
	DataID string
}

// IsPayment reports whether the notification concerns a payment.
func (n Notification) IsPayment() bool {
	return n.Type == "payment" || (n.Type == "" && strings.HasPrefix(n.Action, "payment."))
}

// ParseNotification decodes a webhook body.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "type", "topic":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			if n.Type == "" {
				n.Type = s
			}
			return err
		case "action":
			return decodeOptionalStr(d, &n.Action)
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "id" {
					return d.Skip()
				}
				id, err := decodeID(d)
				n.DataID = id
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return Notification{}, errors.Wrap(err, "decode notification")
	}
	return n, nil
}
