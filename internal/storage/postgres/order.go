package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

const orderColumns = `id, customer_id, contact_name, contact_email, contact_phone, shipping_address,
	total, payment_method, payment_status, COALESCE(payment_id, ''), status, channel,
	tracking_code, delivery_deadline, version, created_at, updated_at`

const (
	insertOrderSQL = `INSERT INTO orders (customer_id, contact_name, contact_email, contact_phone,
		shipping_address, total, payment_method, payment_status, payment_id, status, channel,
		version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING id`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	getOrderByPaymentSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_id = $1
		ORDER BY id DESC LIMIT 1`

	listAwaitingPaymentSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE status = 'PENDING_PAYMENT' AND payment_id IS NOT NULL
			AND payment_status NOT IN ('REJECTED', 'CANCELED', 'EXPIRED')
			AND created_at < $1
		ORDER BY id LIMIT $2`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE $1::text = '' OR status = $1::text
		ORDER BY id DESC LIMIT $2 OFFSET $3`

	listByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY id DESC`

	listItemsSQL = `SELECT order_id, product_id, name, image, unit_price, quantity, subtotal
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	updateOrderSQL = `UPDATE orders SET status = $2, payment_status = $3, payment_id = $4,
		tracking_code = $5, delivery_deadline = $6, version = $7, updated_at = $8
		WHERE id = $1`

	insertTransitionSQL = `INSERT INTO order_status_history (order_id, previous_status, new_status,
		previous_payment, new_payment, payment_id, actor_kind, actor_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	listTransitionsSQL = `SELECT ` + transitionColumns + ` FROM order_status_history
		WHERE order_id = $1 ORDER BY id`

	transitionColumns = `id, order_id, previous_status, new_status, previous_payment, new_payment,
		payment_id, actor_kind, actor_id, notes, created_at`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository on PostgreSQL. Transitions
// serialize on the order row via SELECT ... FOR UPDATE.
type OrderRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts the order, its items and the initial audit row in one
// transaction and sets o.ID.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, initial order.Transition) error {
	if err := o.Validate(); err != nil {
		return err
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertOrderSQL,
			o.CustomerID, o.Contact.Name, o.Contact.Email, o.Contact.Phone,
			o.ShippingAddress, o.Total, o.PaymentMethod, o.PaymentStatus,
			nullString(o.PaymentID), o.Status, o.Channel, o.Version, o.CreatedAt,
		).Scan(&o.ID); err != nil {
			return errors.Wrap(err, "insert order")
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"order_items"},
			[]string{"order_id", "position", "product_id", "name", "image", "unit_price", "quantity", "subtotal"},
			pgx.CopyFromSlice(len(o.Items), func(i int) ([]any, error) {
				it := o.Items[i]
				return []any{o.ID, i, it.ProductID, it.Name, it.Image, it.UnitPrice, it.Quantity, it.Subtotal}, nil
			}),
		)
		if err != nil {
			return errors.Wrap(err, "insert items")
		}

		initial.OrderID = o.ID
		return insertTransition(ctx, tx, &initial)
	})
	if err != nil {
		return storeError("create order", err)
	}
	return nil
}

// Get returns the order with its items.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	o, err := r.queryOne(ctx, r.pool, getOrderSQL, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &order.NotFoundError{OrderID: id}
		}
		return nil, storeError("get order", err)
	}
	if err := o.CheckIntegrity(); err != nil {
		return nil, err
	}
	return o, nil
}

// ApplyTransition locks the order row, lets decide inspect the current state
// and commits the resulting change with its audit row.
func (r *OrderRepository) ApplyTransition(ctx context.Context, id int64, decide order.DecideFunc) (*order.Order, bool, error) {
	var (
		result  *order.Order
		applied bool
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := r.queryOne(ctx, tx, lockOrderSQL, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &order.NotFoundError{OrderID: id}
			}
			return errors.Wrap(err, "lock order")
		}
		if err := cur.CheckIntegrity(); err != nil {
			return err
		}

		change, err := decide(cur.Clone())
		if err != nil {
			return err
		}
		if change == nil {
			result = cur
			return nil
		}

		next := cur.Clone()
		t := change.Apply(next, r.now())
		if _, err := tx.Exec(ctx, updateOrderSQL, next.ID,
			next.Status, next.PaymentStatus, nullString(next.PaymentID),
			next.TrackingCode, next.DeliveryDeadline, next.Version, next.UpdatedAt,
		); err != nil {
			return errors.Wrap(err, "update order")
		}
		if err := insertTransition(ctx, tx, &t); err != nil {
			return err
		}

		result, applied = next, true
		return nil
	})
	if err != nil {
		return nil, false, storeError("apply transition", err)
	}
	return result, applied, nil
}

// History returns the audit trail for the order, oldest first.
func (r *OrderRepository) History(ctx context.Context, id int64) ([]order.Transition, error) {
	rows, err := r.pool.Query(ctx, listTransitionsSQL, id)
	if err != nil {
		return nil, storeError("list history", err)
	}
	ts, err := pgx.CollectRows(rows, scanTransition)
	if err != nil {
		return nil, storeError("list history", err)
	}
	return ts, nil
}

// FindByPaymentID returns the most recent order linked to the payment.
func (r *OrderRepository) FindByPaymentID(ctx context.Context, paymentID string) (*order.Order, error) {
	o, err := r.queryOne(ctx, r.pool, getOrderByPaymentSQL, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &order.NotFoundError{PaymentID: paymentID}
		}
		return nil, storeError("find by payment", err)
	}
	if err := o.CheckIntegrity(); err != nil {
		return nil, err
	}
	return o, nil
}

// ListAwaitingPayment returns orders still waiting on an attached payment.
func (r *OrderRepository) ListAwaitingPayment(ctx context.Context, createdBefore time.Time, limit int) ([]order.Order, error) {
	orders, err := r.queryMany(ctx, listAwaitingPaymentSQL, createdBefore, limit)
	if err != nil {
		return nil, storeError("list awaiting payment", err)
	}
	return orders, nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	orders, err := r.queryMany(ctx, listByCustomerSQL, customerID)
	if err != nil {
		return nil, storeError("list by customer", err)
	}
	return orders, nil
}

// List returns a page of orders, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	orders, err := r.queryMany(ctx, listOrdersSQL, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, storeError("list orders", err)
	}
	return orders, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *OrderRepository) queryOne(ctx context.Context, q querier, sql string, args ...any) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	orders := []order.Order{o}
	if err := loadItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) queryMany(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	if err := loadItems(ctx, r.pool, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func loadItems(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "query items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			it      order.Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Image, &it.UnitPrice, &it.Quantity, &it.Subtotal); err != nil {
			return errors.Wrap(err, "scan item")
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.Contact.Name, &o.Contact.Email, &o.Contact.Phone, &o.ShippingAddress,
		&o.Total, &o.PaymentMethod, &o.PaymentStatus, &o.PaymentID, &o.Status, &o.Channel,
		&o.TrackingCode, &o.DeliveryDeadline, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func scanTransition(row pgx.CollectableRow) (order.Transition, error) {
	var t order.Transition
	err := row.Scan(
		&t.ID, &t.OrderID, &t.FromStatus, &t.ToStatus, &t.FromPayment, &t.ToPayment,
		&t.PaymentID, &t.Actor.Kind, &t.Actor.ID, &t.Note, &t.CreatedAt,
	)
	return t, err
}

func insertTransition(ctx context.Context, tx pgx.Tx, t *order.Transition) error {
	err := tx.QueryRow(ctx, insertTransitionSQL,
		t.OrderID, t.FromStatus, t.ToStatus, t.FromPayment, t.ToPayment,
		t.PaymentID, t.Actor.Kind, t.Actor.ID, t.Note, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return errors.Wrap(err, "insert transition")
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// storeError passes domain errors through untouched and classifies the rest.
func storeError(op string, err error) error {
	var (
		nf  *order.NotFoundError
		ill *order.IllegalTransitionError
		inc *order.IncompleteTransitionError
		val *order.ValidationError
		ie  *order.IntegrityError
	)
	switch {
	case errors.As(err, &nf), errors.As(err, &ill), errors.As(err, &inc), errors.As(err, &val), errors.As(err, &ie):
		return err
	case isConnError(err):
		return &order.StoreUnavailableError{Op: op, Err: err}
	default:
		return errors.Wrap(err, op)
	}
}
