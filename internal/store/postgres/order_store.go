package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantbay/tradebot/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Insert persists a new order record.
func (s *OrderStore) Insert(ctx context.Context, o *domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, broker_order_id, book, symbol, side, qty,
			fill_price, status, source, strategy_name, reason,
			idempotency_key, created_at, filled_at, cancelled_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.BrokerOrderID, string(o.Book), o.Symbol, string(o.Side), o.Qty,
		o.FillPrice, string(o.Status), string(o.Source), o.Strategy, o.Reason,
		o.IdempotencyKey, o.CreatedAt, o.FilledAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateStatus changes the status of an existing order and sets the
// corresponding timestamp field if applicable.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, fillPrice float64, at time.Time) error {
	var query string
	args := []any{string(status), fillPrice}
	switch status {
	case domain.OrderStatusFilled:
		query = `UPDATE orders SET status = $1, fill_price = $2, filled_at = $3, updated_at = NOW() WHERE id = $4`
		args = append(args, at, id)
	case domain.OrderStatusCancelled:
		query = `UPDATE orders SET status = $1, fill_price = $2, cancelled_at = $3, updated_at = NOW() WHERE id = $4`
		args = append(args, at, id)
	default:
		query = `UPDATE orders SET status = $1, fill_price = $2, updated_at = NOW() WHERE id = $3`
		args = append(args, id)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateQty changes the quantity of a pending order.
func (s *OrderStore) UpdateQty(ctx context.Context, id string, qty int64) error {
	const query = `UPDATE orders SET qty = $1, updated_at = NOW() WHERE id = $2`

	tag, err := s.pool.Exec(ctx, query, qty, id)
	if err != nil {
		return fmt.Errorf("postgres: update order qty %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `id, broker_order_id, book, symbol, side, qty,
	fill_price, status, source, strategy_name, reason,
	idempotency_key, created_at, filled_at, cancelled_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (*domain.Order, error) {
	var o domain.Order
	var book, side, status, source string

	err := scanner.Scan(
		&o.ID, &o.BrokerOrderID, &book, &o.Symbol, &side, &o.Qty,
		&o.FillPrice, &status, &source, &o.Strategy, &o.Reason,
		&o.IdempotencyKey, &o.CreatedAt, &o.FilledAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}

	o.Book = domain.Book(book)
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	o.Source = domain.IntentSource(source)
	return &o, nil
}

func scanOrderRows(rows pgx.Rows) ([]*domain.Order, error) {
	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Get retrieves a single order by ID.
func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// List returns orders matching the filter, newest first.
func (s *OrderStore) List(ctx context.Context, f domain.OrderFilter) ([]*domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Book != "" {
		query += fmt.Sprintf(" AND book = $%d", argIdx)
		args = append(args, string(f.Book))
		argIdx++
	}
	if f.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIdx)
		args = append(args, f.Symbol)
		argIdx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	if f.Source != "" {
		query += fmt.Sprintf(" AND source = $%d", argIdx)
		args = append(args, string(f.Source))
		argIdx++
	}
	if !f.Since.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, f.Since)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders: %w", err)
	}
	return orders, nil
}

// DeleteBook removes every order in a book. Used by the paper reset.
func (s *OrderStore) DeleteBook(ctx context.Context, book domain.Book) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE book = $1`, string(book)); err != nil {
		return fmt.Errorf("postgres: delete %s orders: %w", book, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
