package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/lojavirtual/orderflow/internal/domain/order"
)

const streamTransitionsSQL = `SELECT ` + transitionColumns + ` FROM order_status_history
	WHERE created_at >= $1 AND created_at < $2 ORDER BY id`

// StreamTransitions calls fn for every audit row created in [from, to),
// in commit order, without buffering the result set.
func (r *OrderRepository) StreamTransitions(ctx context.Context, from, to time.Time, fn func(order.Transition) error) error {
	rows, err := r.pool.Query(ctx, streamTransitionsSQL, from, to)
	if err != nil {
		return errors.Wrap(err, "query transitions")
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTransition(rows)
		if err != nil {
			return errors.Wrap(err, "scan transition")
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return rows.Err()
}
