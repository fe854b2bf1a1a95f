// Package service holds the engine's domain services: quote resolution, the
// position book, the risk monitor, the daily scheduler and options helpers.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
)

// QuoteService resolves tradeable prices. Paper fills, PnL marks and
// square-offs all go through Resolve so nothing ever executes against a
// missing or stale price.
type QuoteService struct {
	cache    domain.QuoteCache
	provider domain.QuoteProvider
	maxAge   time.Duration
	logger   *slog.Logger
}

// NewQuoteService creates a QuoteService. provider may be nil in tests; the
// fallback chain then stops at the cache.
func NewQuoteService(cache domain.QuoteCache, provider domain.QuoteProvider, maxAge time.Duration, logger *slog.Logger) *QuoteService {
	return &QuoteService{
		cache:    cache,
		provider: provider,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "quote_service")),
	}
}

// Resolve returns a usable price for symbol. The chain is: fresh cached tick,
// then an on-demand broker LTP call, then the mid of best bid/ask. It returns
// domain.ErrNoQuote when every source comes up empty; callers must treat that
// as a hard failure, never as price zero.
func (s *QuoteService) Resolve(ctx context.Context, symbol string) (float64, error) {
	q, err := s.cache.Get(ctx, symbol)
	if err == nil && q.LTP > 0 && !q.Stale(time.Now(), s.maxAge) {
		return q.LTP, nil
	}

	if s.provider != nil {
		if ltp, err := s.provider.LTP(ctx, symbol); err == nil && ltp > 0 {
			return ltp, nil
		}
		if bid, ask, err := s.provider.Depth(ctx, symbol); err == nil && bid > 0 && ask > 0 {
			return (bid + ask) / 2, nil
		}
	}

	// A stale cached LTP beats nothing only for marks, not for fills, so it
	// is not used here.
	return 0, fmt.Errorf("service: resolve %s: %w", symbol, domain.ErrNoQuote)
}

// Snapshot returns cached quotes for the given symbols.
func (s *QuoteService) Snapshot(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	return s.cache.Snapshot(ctx, symbols)
}
