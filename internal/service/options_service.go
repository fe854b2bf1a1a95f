package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantbay/tradebot/internal/domain"
)

// Submitter routes an order intent. Satisfied by the order router.
type Submitter interface {
	Submit(ctx context.Context, intent domain.OrderIntent) (*domain.Order, error)
}

// OptionsService resolves option chains and places ATM two-leg trades.
// Chains are cached briefly since the instrument dump only changes
// when the broker refreshes it.
type OptionsService struct {
	resolver domain.OptionsChainResolver
	quotes   *QuoteService
	orders   Submitter
	logger   *slog.Logger
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cachedChain
}

type cachedChain struct {
	chain domain.OptionChain
	at    time.Time
}

func NewOptionsService(resolver domain.OptionsChainResolver, quotes *QuoteService, orders Submitter, logger *slog.Logger) *OptionsService {
	return &OptionsService{
		resolver: resolver,
		quotes:   quotes,
		orders:   orders,
		logger:   logger.With(slog.String("component", "options")),
		cacheTTL: 5 * time.Minute,
		cache:    make(map[string]cachedChain),
	}
}

// Chain returns the chain for an underlying and expiry. When count > 0
// only the count strikes nearest `around` (or the chain's ATM when
// around is zero) are returned, ascending by strike.
func (s *OptionsService) Chain(ctx context.Context, underlying, expiry string, around float64, count int) (domain.OptionChain, error) {
	chain, err := s.resolve(ctx, underlying, expiry)
	if err != nil {
		return domain.OptionChain{}, err
	}
	if count <= 0 || count >= len(chain.Strikes) {
		return chain, nil
	}

	selected := make([]domain.OptionStrike, 0, count)
	seen := make(map[float64]bool, count)
	for offset := 0; len(selected) < count; offset++ {
		row, err := chain.AtStrike(around, offset)
		if err != nil {
			return domain.OptionChain{}, fmt.Errorf("options: chain %s %s: %w", underlying, expiry, err)
		}
		if seen[row.Strike] {
			break
		}
		seen[row.Strike] = true
		selected = append(selected, row)
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Strike < selected[j].Strike })

	chain.Strikes = selected
	return chain, nil
}

// PlaceATM places a two-leg option trade around the money: the CE at
// `offset` strikes above ATM and the PE `offset` strikes below, both on
// the same side. Offset zero is a straddle, anything higher a strangle.
// ATM is picked from the underlying's last traded price.
func (s *OptionsService) PlaceATM(ctx context.Context, underlying, expiry string, side domain.OrderSide, lots int64, offset int) ([]*domain.Order, error) {
	if lots <= 0 {
		return nil, fmt.Errorf("options: place atm: %w: lots must be positive", domain.ErrValidation)
	}
	if offset < 0 {
		return nil, fmt.Errorf("options: place atm: %w: offset must be >= 0", domain.ErrValidation)
	}

	chain, err := s.resolve(ctx, underlying, expiry)
	if err != nil {
		return nil, err
	}
	if len(chain.Strikes) == 0 {
		return nil, fmt.Errorf("options: place atm %s %s: empty chain: %w", underlying, expiry, domain.ErrNotFound)
	}

	ltp, err := s.quotes.Resolve(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("options: place atm %s: underlying quote: %w", underlying, err)
	}

	strikes := chain.Strikes
	atm := nearestStrike(strikes, ltp)
	ceIdx := clampIdx(atm+offset, len(strikes))
	peIdx := clampIdx(atm-offset, len(strikes))

	lotSize := chain.LotSize
	if lotSize <= 0 {
		lotSize = domain.LotSize(underlying)
	}
	qty := lots * lotSize

	s.logger.Info("placing atm legs",
		slog.String("underlying", underlying),
		slog.String("expiry", expiry),
		slog.Float64("ltp", ltp),
		slog.Float64("ce_strike", strikes[ceIdx].Strike),
		slog.Float64("pe_strike", strikes[peIdx].Strike),
		slog.Int64("qty", qty))

	legs := []string{strikes[ceIdx].CESymbol, strikes[peIdx].PESymbol}
	out := make([]*domain.Order, 0, len(legs))
	for _, leg := range legs {
		intent := domain.OrderIntent{
			ID:             uuid.NewString(),
			Symbol:         leg,
			Side:           side,
			Qty:            qty,
			Source:         domain.SourceManual,
			Reason:         fmt.Sprintf("atm %s %s", underlying, expiry),
			IdempotencyKey: uuid.NewString(),
			CreatedAt:      time.Now(),
		}
		order, err := s.orders.Submit(ctx, intent)
		if err != nil {
			return out, fmt.Errorf("options: place atm leg %s: %w", leg, err)
		}
		out = append(out, order)
	}
	return out, nil
}

func (s *OptionsService) resolve(ctx context.Context, underlying, expiry string) (domain.OptionChain, error) {
	if underlying == "" || expiry == "" {
		return domain.OptionChain{}, fmt.Errorf("options: %w: underlying and expiry required", domain.ErrValidation)
	}
	key := underlying + "|" + expiry

	s.mu.Lock()
	if c, ok := s.cache[key]; ok && time.Since(c.at) < s.cacheTTL {
		s.mu.Unlock()
		return c.chain, nil
	}
	s.mu.Unlock()

	chain, err := s.resolver.Chain(ctx, underlying, expiry)
	if err != nil {
		return domain.OptionChain{}, fmt.Errorf("options: resolve chain %s %s: %w", underlying, expiry, err)
	}
	sort.Slice(chain.Strikes, func(i, j int) bool { return chain.Strikes[i].Strike < chain.Strikes[j].Strike })

	s.mu.Lock()
	s.cache[key] = cachedChain{chain: chain, at: time.Now()}
	s.mu.Unlock()
	return chain, nil
}

// nearestStrike returns the index of the strike closest to price in an
// ascending list, preferring the lower strike on ties.
func nearestStrike(strikes []domain.OptionStrike, price float64) int {
	best, bestDist := 0, -1.0
	for i, s := range strikes {
		d := s.Strike - price
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
