package domain

import (
	"context"
	"time"
)

// ListOpts bounds list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Book     Book
	Symbol   string
	Status   OrderStatus
	Source   IntentSource
	Since    time.Time
	ListOpts
}

// OrderStore persists order records.
type OrderStore interface {
	Insert(ctx context.Context, o *Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus, fillPrice float64, at time.Time) error
	UpdateQty(ctx context.Context, id string, qty int64) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f OrderFilter) ([]*Order, error)
	DeleteBook(ctx context.Context, book Book) error
}

// FillStore persists fills; the in-memory book replays them on startup.
type FillStore interface {
	Insert(ctx context.Context, f *Fill) error
	ListSince(ctx context.Context, book Book, since time.Time) ([]*Fill, error)
	DeleteBook(ctx context.Context, book Book) error
}

// AuditEvent is an append-only operational record.
type AuditEvent struct {
	ID        string
	Kind      string
	Subject   string
	Detail    string
	CreatedAt time.Time
}

// AuditStore appends audit events.
type AuditStore interface {
	Append(ctx context.Context, ev AuditEvent) error
	List(ctx context.Context, kind string, opts ListOpts) ([]AuditEvent, error)
}
