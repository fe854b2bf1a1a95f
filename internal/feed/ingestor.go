// Package feed ingests the broker tick stream and fans it out to the
// engine's consumers through bounded queues. A slow consumer loses its
// oldest queued ticks, never the newest, and never blocks the stream.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
)

// consumer is one registered tick sink with its own queue.
type consumer struct {
	name    string
	fn      func(domain.Tick)
	queue   chan domain.Tick
	dropped atomic.Int64
}

// Stats is a point-in-time view of ingestion counters.
type Stats struct {
	TicksSeen    int64            `json:"ticks_seen"`
	TicksDropped int64            `json:"ticks_dropped"`
	PerConsumer  map[string]int64 `json:"dropped_per_consumer"`
}

// Ingestor drives the quote provider's stream. Every tick updates the
// in-memory hot map and the shared cache, then fans out to consumers.
// Symbols touched since the last interval are published to the bus as
// one coalesced snapshot.
type Ingestor struct {
	provider domain.QuoteProvider
	cache    domain.QuoteCache
	bus      domain.EventBus
	logger   *slog.Logger

	queueSize        int
	snapshotInterval time.Duration

	mu        sync.RWMutex
	hot       map[string]domain.Quote
	dirty     map[string]struct{}
	consumers []*consumer

	ticksSeen    atomic.Int64
	ticksDropped atomic.Int64
}

func NewIngestor(provider domain.QuoteProvider, cache domain.QuoteCache, bus domain.EventBus, queueSize int, snapshotInterval time.Duration, logger *slog.Logger) *Ingestor {
	if queueSize < 1 {
		queueSize = 1024
	}
	if snapshotInterval <= 0 {
		snapshotInterval = time.Second
	}
	return &Ingestor{
		provider:         provider,
		cache:            cache,
		bus:              bus,
		logger:           logger.With(slog.String("component", "feed")),
		queueSize:        queueSize,
		snapshotInterval: snapshotInterval,
		hot:              make(map[string]domain.Quote),
		dirty:            make(map[string]struct{}),
	}
}

// Register adds a named consumer. Must be called before Run.
func (in *Ingestor) Register(name string, fn func(domain.Tick)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.consumers = append(in.consumers, &consumer{
		name:  name,
		fn:    fn,
		queue: make(chan domain.Tick, in.queueSize),
	})
}

// Run starts the consumer workers and the snapshot publisher, then
// drives the provider's stream until the context is cancelled.
func (in *Ingestor) Run(ctx context.Context) error {
	in.mu.RLock()
	consumers := in.consumers
	in.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c *consumer) {
			defer wg.Done()
			in.consume(ctx, c)
		}(c)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		in.publishSnapshots(ctx)
	}()

	err := in.provider.Run(ctx, func(tick domain.Tick) { in.ingest(ctx, tick) })
	wg.Wait()
	return err
}

// Latest returns the in-memory quote for a symbol without touching the
// shared cache.
func (in *Ingestor) Latest(symbol string) (domain.Quote, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	q, ok := in.hot[symbol]
	return q, ok
}

// All returns every in-memory quote, unordered.
func (in *Ingestor) All() []domain.Quote {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]domain.Quote, 0, len(in.hot))
	for _, q := range in.hot {
		out = append(out, q)
	}
	return out
}

// Stats returns the ingestion counters.
func (in *Ingestor) Stats() Stats {
	in.mu.RLock()
	defer in.mu.RUnlock()
	s := Stats{
		TicksSeen:    in.ticksSeen.Load(),
		TicksDropped: in.ticksDropped.Load(),
		PerConsumer:  make(map[string]int64, len(in.consumers)),
	}
	for _, c := range in.consumers {
		s.PerConsumer[c.name] = c.dropped.Load()
	}
	return s
}

func (in *Ingestor) ingest(ctx context.Context, tick domain.Tick) {
	if tick.Symbol == "" || tick.LTP <= 0 {
		return
	}
	in.ticksSeen.Add(1)

	quote := domain.QuoteFromTick(tick)
	in.mu.Lock()
	in.hot[tick.Symbol] = quote
	in.dirty[tick.Symbol] = struct{}{}
	consumers := in.consumers
	in.mu.Unlock()

	if err := in.cache.Set(ctx, quote); err != nil {
		in.logger.Debug("quote cache write failed",
			slog.String("symbol", tick.Symbol),
			slog.String("error", err.Error()))
	}

	for _, c := range consumers {
		in.offer(c, tick)
	}
}

// offer enqueues a tick, evicting the oldest queued tick when the
// consumer's queue is full.
func (in *Ingestor) offer(c *consumer, tick domain.Tick) {
	select {
	case c.queue <- tick:
		return
	default:
	}

	select {
	case <-c.queue:
		c.dropped.Add(1)
		in.ticksDropped.Add(1)
	default:
	}

	select {
	case c.queue <- tick:
	default:
		c.dropped.Add(1)
		in.ticksDropped.Add(1)
	}
}

func (in *Ingestor) consume(ctx context.Context, c *consumer) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-c.queue:
			c.fn(tick)
		}
	}
}

// publishSnapshots coalesces updated symbols into one bus message per
// interval so downstream viewers see at most one update per second
// regardless of tick rate.
func (in *Ingestor) publishSnapshots(ctx context.Context) {
	ticker := time.NewTicker(in.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.mu.Lock()
			if len(in.dirty) == 0 {
				in.mu.Unlock()
				continue
			}
			quotes := make([]domain.Quote, 0, len(in.dirty))
			for symbol := range in.dirty {
				quotes = append(quotes, in.hot[symbol])
			}
			in.dirty = make(map[string]struct{})
			in.mu.Unlock()

			payload, err := json.Marshal(quotes)
			if err != nil {
				continue
			}
			if err := in.bus.Publish(ctx, "quotes.snapshot", payload); err != nil {
				in.logger.Debug("snapshot publish failed",
					slog.String("error", err.Error()))
			}
		}
	}
}
