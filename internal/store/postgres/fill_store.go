package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantbay/tradebot/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL. The in-memory
// position book replays fills from here on startup.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Insert appends a fill.
func (s *FillStore) Insert(ctx context.Context, f *domain.Fill) error {
	const query = `
		INSERT INTO fills (order_id, book, symbol, side, qty, price, strategy_name, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		f.OrderID, string(f.Book), f.Symbol, string(f.Side),
		f.Qty, f.Price, f.Strategy, f.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill %s: %w", f.OrderID, err)
	}
	return nil
}

// ListSince returns a book's fills at or after since, oldest first so the
// caller can replay them in order.
func (s *FillStore) ListSince(ctx context.Context, book domain.Book, since time.Time) ([]*domain.Fill, error) {
	const query = `
		SELECT order_id, book, symbol, side, qty, price, strategy_name, filled_at
		FROM fills
		WHERE book = $1 AND filled_at >= $2
		ORDER BY filled_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, string(book), since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer rows.Close()

	var fills []*domain.Fill
	for rows.Next() {
		var f domain.Fill
		var b, side string
		if err := rows.Scan(&f.OrderID, &b, &f.Symbol, &side, &f.Qty, &f.Price, &f.Strategy, &f.At); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		f.Book = domain.Book(b)
		f.Side = domain.OrderSide(side)
		fills = append(fills, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fills rows: %w", err)
	}
	return fills, nil
}

// DeleteBook removes every fill in a book. Used by the paper reset.
func (s *FillStore) DeleteBook(ctx context.Context, book domain.Book) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM fills WHERE book = $1`, string(book)); err != nil {
		return fmt.Errorf("postgres: delete %s fills: %w", book, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.FillStore = (*FillStore)(nil)
