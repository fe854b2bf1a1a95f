package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantbay/tradebot/internal/domain"
)

// Archiver exports the day's ledger to the object store as gzipped
// NDJSON, one object per record kind:
//
//	orders/2026/08/29.ndjson.gz
//	fills/2026/08/29.ndjson.gz
//
// The primary store is not pruned here; archives are additive.
type Archiver struct {
	writer *Writer
	orders domain.OrderStore
	fills  domain.FillStore
	audit  domain.AuditStore
	logger *slog.Logger
}

func NewArchiver(writer *Writer, orders domain.OrderStore, fills domain.FillStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		orders: orders,
		fills:  fills,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveDay exports all orders and fills created on the given calendar
// day, both paper and live.
func (a *Archiver) ArchiveDay(ctx context.Context, day time.Time) error {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	orders, err := a.orders.List(ctx, domain.OrderFilter{Since: start})
	if err != nil {
		return fmt.Errorf("s3blob: archive day orders query: %w", err)
	}
	buf, err := marshalGzipNDJSON(orders)
	if err != nil {
		return fmt.Errorf("s3blob: archive day orders marshal: %w", err)
	}
	if err := a.upload(ctx, archivePath("orders", day), buf); err != nil {
		return err
	}

	var fills []*domain.Fill
	for _, book := range []domain.Book{domain.BookPaper, domain.BookLive} {
		bookFills, err := a.fills.ListSince(ctx, book, start)
		if err != nil {
			return fmt.Errorf("s3blob: archive day fills query: %w", err)
		}
		fills = append(fills, bookFills...)
	}
	buf, err = marshalGzipNDJSON(fills)
	if err != nil {
		return fmt.Errorf("s3blob: archive day fills marshal: %w", err)
	}
	if err := a.upload(ctx, archivePath("fills", day), buf); err != nil {
		return err
	}

	detail, _ := json.Marshal(map[string]any{
		"day":    day.Format("2006-01-02"),
		"orders": len(orders),
		"fills":  len(fills),
	})
	if err := a.audit.Append(ctx, domain.AuditEvent{
		ID:        uuid.NewString(),
		Kind:      "archive",
		Subject:   day.Format("2006-01-02"),
		Detail:    string(detail),
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("s3blob: archive day audit: %w", err)
	}

	a.logger.Info("day archived",
		slog.String("day", day.Format("2006-01-02")),
		slog.Int("orders", len(orders)),
		slog.Int("fills", len(fills)))
	return nil
}

func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/gzip"); err != nil {
		return fmt.Errorf("s3blob: archive upload: %w", err)
	}

	ok, err := a.writer.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: archive verify %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("s3blob: archive verify %s: object missing after upload", path)
	}
	return nil
}

// archivePath partitions keys by calendar day.
func archivePath(kind string, day time.Time) string {
	return fmt.Sprintf("%s/%s.ndjson.gz", kind, day.Format("2006/01/02"))
}

// marshalGzipNDJSON serialises a slice as newline-delimited JSON and
// gzips the result. Each element is one compact JSON line.
func marshalGzipNDJSON[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)

	enc := json.NewEncoder(gz)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("ndjson encode record %d: %w", i, err)
		}
	}

	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}
