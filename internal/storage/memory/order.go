// Package memory provides in-process implementations of the storage
// interfaces for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

var _ order.Repository = (*OrderStore)(nil)

// OrderStore implements order.Repository in memory. Each order has its own
// lock, so transitions on different orders never contend.
type OrderStore struct {
	mu      sync.RWMutex
	nextID  int64
	nextTID int64
	orders  map[int64]*entry
	byPay   map[string]int64
	now     func() time.Time
}

type entry struct {
	mu      sync.Mutex
	order   *order.Order
	history []order.Transition
}

// NewOrderStore creates an empty store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[int64]*entry),
		byPay:  make(map[string]int64),
		now:    time.Now,
	}
}

// Create stores o with its initial audit row and assigns its id.
func (s *OrderStore) Create(_ context.Context, o *order.Order, initial order.Transition) error {
	if err := o.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	o.ID = s.nextID
	s.nextTID++
	initial.ID = s.nextTID
	initial.OrderID = o.ID

	s.orders[o.ID] = &entry{
		order:   o.Clone(),
		history: []order.Transition{initial},
	}
	if o.PaymentID != "" {
		s.byPay[o.PaymentID] = o.ID
	}
	return nil
}

func (s *OrderStore) lookup(id int64) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.orders[id]
	if !ok {
		return nil, &order.NotFoundError{OrderID: id}
	}
	return e, nil
}

// Get returns a copy of the order.
func (s *OrderStore) Get(_ context.Context, id int64) (*order.Order, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	o := e.order.Clone()
	if err := o.CheckIntegrity(); err != nil {
		return nil, err
	}
	return o, nil
}

// ApplyTransition runs decide under the order's lock and commits the result.
func (s *OrderStore) ApplyTransition(_ context.Context, id int64, decide order.DecideFunc) (*order.Order, bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.order.CheckIntegrity(); err != nil {
		return nil, false, err
	}

	change, err := decide(e.order.Clone())
	if err != nil {
		return nil, false, err
	}
	if change == nil {
		return e.order.Clone(), false, nil
	}

	next := e.order.Clone()
	t := change.Apply(next, s.now())

	s.mu.Lock()
	s.nextTID++
	t.ID = s.nextTID
	if next.PaymentID != "" {
		s.byPay[next.PaymentID] = next.ID
	}
	s.mu.Unlock()

	e.order = next
	e.history = append(e.history, t)
	return next.Clone(), true, nil
}

// History returns the audit trail, oldest first.
func (s *OrderStore) History(_ context.Context, id int64) ([]order.Transition, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]order.Transition(nil), e.history...), nil
}

// FindByPaymentID returns the order linked to the gateway payment.
func (s *OrderStore) FindByPaymentID(ctx context.Context, paymentID string) (*order.Order, error) {
	s.mu.RLock()
	id, ok := s.byPay[paymentID]
	s.mu.RUnlock()
	if !ok {
		return nil, &order.NotFoundError{PaymentID: paymentID}
	}
	return s.Get(ctx, id)
}

// ListAwaitingPayment returns PENDING_PAYMENT orders whose attached payment
// has not failed, created before the cutoff, oldest first.
func (s *OrderStore) ListAwaitingPayment(_ context.Context, createdBefore time.Time, limit int) ([]order.Order, error) {
	return s.collect(func(o *order.Order) bool {
		return o.Status == order.StatusPendingPayment && o.PaymentID != "" &&
			!o.PaymentStatus.Failed() && o.CreatedAt.Before(createdBefore)
	}, false, 0, limit), nil
}

// List returns a page of orders, newest first.
func (s *OrderStore) List(_ context.Context, f order.ListFilter) ([]order.Order, error) {
	return s.collect(func(o *order.Order) bool {
		return f.Status == "" || o.Status == f.Status
	}, true, f.Offset, f.Limit), nil
}

// ListByCustomer returns the customer's orders, newest first.
func (s *OrderStore) ListByCustomer(_ context.Context, customerID string) ([]order.Order, error) {
	return s.collect(func(o *order.Order) bool {
		return o.CustomerID == customerID
	}, true, 0, 0), nil
}

func (s *OrderStore) collect(match func(*order.Order) bool, newestFirst bool, offset, limit int) []order.Order {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.orders))
	for _, e := range s.orders {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []order.Order
	for _, e := range entries {
		e.mu.Lock()
		if match(e.order) {
			out = append(out, *e.order.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	if offset > 0 {
		out = out[min(offset, len(out)):]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
