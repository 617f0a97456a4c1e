package notify

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

// EventType is the header value of every published status event.
const EventType = "order.status_changed"

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaConfig configures status event publishing.
type KafkaConfig struct {
	Brokers      string        `usage:"Comma separated Kafka brokers; empty disables publishing"`
	Topic        string        `default:"orderflow.order-status" usage:"Topic for order status events"`
	WriteTimeout time.Duration `default:"5s" usage:"Kafka write timeout"`
	Required     bool          `default:"false" usage:"Report not ready while no Kafka broker is reachable"`
}

// BrokerList splits Brokers into addresses.
func (c KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewKafkaWriter creates a writer keyed by order id so events for one order
// stay in one partition.
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.BrokerList()...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
}

var _ order.Notifier = (*Kafka)(nil)

// Kafka publishes status changes as JSON events.
type Kafka struct {
	writer MessageWriter
	newID  func() uuid.UUID
	now    func() time.Time
}

// NewKafka creates a Kafka notifier.
func NewKafka(w MessageWriter) *Kafka {
	return &Kafka{writer: w, newID: uuid.New, now: time.Now}
}

func (k *Kafka) Notify(ctx context.Context, o *order.Order, prev, next order.Status) error {
	id := k.newID().String()
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(o.ID, 10)),
		Value: EncodeEvent(id, k.now().UTC(), o, prev, next),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventType)},
			{Key: "event_id", Value: []byte(id)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish status event for order %d", o.ID)
	}
	return nil
}

// EncodeEvent renders the status event payload.
func EncodeEvent(id string, at time.Time, o *order.Order, prev, next order.Status) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("event_id")
	e.Str(id)
	e.FieldStart("type")
	e.Str(EventType)
	e.FieldStart("occurred_at")
	e.Str(at.Format(time.RFC3339Nano))
	e.FieldStart("order_id")
	e.Int64(o.ID)
	e.FieldStart("customer_id")
	e.Str(o.CustomerID)
	e.FieldStart("previous_status")
	if prev == "" {
		e.Null()
	} else {
		e.Str(string(prev))
	}
	e.FieldStart("status")
	e.Str(string(next))
	e.FieldStart("payment_status")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("channel")
	e.Str(string(o.Channel))
	e.FieldStart("total")
	e.Str(o.Total.StringFixed(2))
	if o.TrackingCode != "" {
		e.FieldStart("tracking_code")
		e.Str(o.TrackingCode)
	}
	e.FieldStart("version")
	e.Int64(o.Version)
	e.ObjEnd()

	out := make([]byte, len(e.Bytes()))
	copy(out, e.Bytes())
	return out
}
