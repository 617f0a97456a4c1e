package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the aggregate root: header, snapshotted line items and the
// current lifecycle state.
type Order struct {
	ID               int64
	CustomerID       string
	Contact          Contact
	ShippingAddress  string
	Items            []Item
	Total            decimal.Decimal
	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	PaymentID        string
	Status           Status
	Channel          Channel
	TrackingCode     string
	DeliveryDeadline *time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Contact is the buyer contact snapshot taken at checkout.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Item is an immutable line snapshot. Later catalog edits never change it.
type Item struct {
	ProductID string
	Name      string
	Image     string
	UnitPrice decimal.Decimal
	Quantity  int
	Subtotal  decimal.Decimal
}

// ActorKind classifies who caused a transition.
type ActorKind string

const (
	ActorCustomer ActorKind = "customer"
	ActorAdmin    ActorKind = "admin"
	ActorWebhook  ActorKind = "system-webhook"
	ActorPoller   ActorKind = "system-poller"
	ActorSystem   ActorKind = "system"
)

// Actor identifies the caller responsible for a transition.
type Actor struct {
	Kind ActorKind
	ID   string
}

func (a Actor) String() string {
	if a.ID == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + a.ID
}

// Transition is one row of the append-only audit trail.
type Transition struct {
	ID          int64
	OrderID     int64
	FromStatus  Status
	ToStatus    Status
	FromPayment PaymentStatus
	ToPayment   PaymentStatus
	PaymentID   string
	Actor       Actor
	Note        string
	CreatedAt   time.Time
}

// Change is the outcome of a transition decision, applied by the store to
// the locked order.
type Change struct {
	Status           Status
	PaymentStatus    PaymentStatus
	PaymentID        string
	TrackingCode     string
	DeliveryDeadline *time.Time
	Actor            Actor
	Note             string
}

// Apply mutates o according to c and returns the audit row describing it.
// Tracking data is only ever set, never cleared.
func (c *Change) Apply(o *Order, now time.Time) Transition {
	t := Transition{
		OrderID:     o.ID,
		FromStatus:  o.Status,
		ToStatus:    c.Status,
		FromPayment: o.PaymentStatus,
		ToPayment:   c.PaymentStatus,
		Actor:       c.Actor,
		Note:        c.Note,
		CreatedAt:   now,
	}
	o.Status = c.Status
	o.PaymentStatus = c.PaymentStatus
	if c.PaymentID != "" {
		o.PaymentID = c.PaymentID
	}
	if c.TrackingCode != "" {
		o.TrackingCode = c.TrackingCode
	}
	if c.DeliveryDeadline != nil {
		d := *c.DeliveryDeadline
		o.DeliveryDeadline = &d
	}
	o.Version++
	o.UpdatedAt = now
	t.PaymentID = o.PaymentID
	return t
}

// DecideFunc inspects the freshly locked order and returns the change to
// persist. A nil change leaves the order untouched.
type DecideFunc func(current *Order) (*Change, error)

// Repository is the durable order store. ApplyTransition is the only way to
// mutate an existing order: it locks the row, calls decide with the current
// state, and commits the order and its audit row together.
type Repository interface {
	Create(ctx context.Context, o *Order, initial Transition) error
	Get(ctx context.Context, id int64) (*Order, error)
	ApplyTransition(ctx context.Context, id int64, decide DecideFunc) (*Order, bool, error)
	History(ctx context.Context, id int64) ([]Transition, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	ListAwaitingPayment(ctx context.Context, createdBefore time.Time, limit int) ([]Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
}

// ListFilter selects a page of orders, newest first. An empty Status matches
// every order.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Validate checks the order's money invariant: every line subtotal equals
// unit price times quantity and the total equals the sum of the subtotals.
func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return &ValidationError{OrderID: o.ID, Field: "items", Reason: "order has no items"}
	}
	sum := decimal.Zero
	for _, it := range o.Items {
		if it.Quantity < 1 {
			return &ValidationError{OrderID: o.ID, Field: "quantity", Reason: "product " + it.ProductID + " has quantity below 1"}
		}
		if !it.Subtotal.Equal(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))) {
			return &ValidationError{OrderID: o.ID, Field: "subtotal", Reason: "product " + it.ProductID + " subtotal does not match price times quantity"}
		}
		sum = sum.Add(it.Subtotal)
	}
	if !o.Total.Equal(sum) {
		return &ValidationError{
			OrderID: o.ID,
			Field:   "total",
			Reason:  "total " + o.Total.StringFixed(2) + " does not match item sum " + sum.StringFixed(2),
		}
	}
	return nil
}

// CheckIntegrity is Validate for orders read back from storage.
func (o *Order) CheckIntegrity() error {
	if err := o.Validate(); err != nil {
		return &IntegrityError{OrderID: o.ID, Reason: err.Error()}
	}
	return nil
}

// Missing returns the fields status requires that o does not carry.
func (o *Order) Missing(status Status) []Field {
	var missing []Field
	for _, f := range RequiredFields(status) {
		switch f {
		case FieldTrackingCode:
			if o.TrackingCode == "" {
				missing = append(missing, f)
			}
		case FieldDeliveryDeadline:
			if o.DeliveryDeadline == nil {
				missing = append(missing, f)
			}
		}
	}
	return missing
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	if o.DeliveryDeadline != nil {
		d := *o.DeliveryDeadline
		c.DeliveryDeadline = &d
	}
	return &c
}
