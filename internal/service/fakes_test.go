package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memFillStore keeps fills in memory, ordered by insertion.
type memFillStore struct {
	mu    sync.Mutex
	fills []*domain.Fill
}

func (s *memFillStore) Insert(_ context.Context, f *domain.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.fills = append(s.fills, &cp)
	return nil
}

func (s *memFillStore) ListSince(_ context.Context, book domain.Book, since time.Time) ([]*domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Fill
	for _, f := range s.fills {
		if f.Book == book && (since.IsZero() || !f.At.Before(since)) {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memFillStore) DeleteBook(_ context.Context, book domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.fills[:0]
	for _, f := range s.fills {
		if f.Book != book {
			kept = append(kept, f)
		}
	}
	s.fills = kept
	return nil
}

type memAuditStore struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (s *memAuditStore) Append(_ context.Context, ev domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memAuditStore) List(_ context.Context, kind string, _ domain.ListOpts) ([]domain.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEvent
	for _, ev := range s.events {
		if kind == "" || ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out, nil
}

// memQuoteCache is a map-backed QuoteCache.
type memQuoteCache struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

func newMemQuoteCache() *memQuoteCache {
	return &memQuoteCache{quotes: map[string]domain.Quote{}}
}

func (c *memQuoteCache) Set(_ context.Context, q domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Symbol] = q
	return nil
}

func (c *memQuoteCache) Get(_ context.Context, symbol string) (domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrNoQuote
	}
	return q, nil
}

func (c *memQuoteCache) Snapshot(_ context.Context, symbols []string) (map[string]domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]domain.Quote, len(symbols))
	for _, s := range symbols {
		if q, ok := c.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (c *memQuoteCache) set(symbol string, ltp float64) {
	_ = c.Set(context.Background(), domain.Quote{Symbol: symbol, LTP: ltp, ReceivedAt: time.Now()})
}

// memBus records published messages.
type memBus struct {
	mu       sync.Mutex
	messages []domain.BusMessage
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, domain.BusMessage{Channel: channel, Payload: payload})
	return nil
}

func (b *memBus) Subscribe(_ context.Context, _ string) (<-chan domain.BusMessage, error) {
	ch := make(chan domain.BusMessage)
	close(ch)
	return ch, nil
}

func (b *memBus) Close() error { return nil }

func newTestQuotes(cache domain.QuoteCache) *QuoteService {
	return NewQuoteService(cache, nil, time.Minute, testLogger())
}
