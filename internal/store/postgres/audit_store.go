package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantbay/tradebot/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Append inserts a new audit event. Detail is stored as JSONB.
func (s *AuditStore) Append(ctx context.Context, ev domain.AuditEvent) error {
	const query = `INSERT INTO audit_log (id, kind, subject, detail, created_at) VALUES ($1, $2, $3, NULLIF($4, '')::jsonb, $5)`
	_, err := s.pool.Exec(ctx, query, ev.ID, ev.Kind, ev.Subject, ev.Detail, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append audit event %s: %w", ev.Kind, err)
	}
	return nil
}

// List returns audit events of one kind (or all when kind is empty), newest
// first, with pagination.
func (s *AuditStore) List(ctx context.Context, kind string, opts domain.ListOpts) ([]domain.AuditEvent, error) {
	query := `SELECT id, kind, subject, COALESCE(detail::text, ''), created_at FROM audit_log WHERE 1=1`
	args := []any{}
	argIdx := 1

	if kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, kind)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Subject, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list audit events rows: %w", err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
