package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantbay/tradebot/internal/domain"
)

// EMACrossover is the exponential variant of the crossover strategy. Both
// averages are seeded with the first observed price.
type EMACrossover struct {
	logger *slog.Logger
	qty    int64
	short  int
	long   int
	state  map[string]*emaState
}

type emaState struct {
	short *EMA
	long  *EMA
	cross crosser
}

// NewEMACrossover creates an uninitialized EMACrossover.
func NewEMACrossover(logger *slog.Logger) *EMACrossover {
	return &EMACrossover{logger: logger.With(slog.String("strategy", string(domain.StrategyEMACrossover)))}
}

// Name implements Strategy.
func (s *EMACrossover) Name() string { return string(domain.StrategyEMACrossover) }

// Init implements Strategy.
func (s *EMACrossover) Init(_ context.Context, cfg domain.StrategyConfig) error {
	s.short = int(paramOr(cfg.Params, "short_period", 12))
	s.long = int(paramOr(cfg.Params, "long_period", 26))
	if s.short <= 0 || s.long <= 0 {
		return fmt.Errorf("periods must be positive: %w", domain.ErrValidation)
	}
	if s.short >= s.long {
		return fmt.Errorf("short_period %d must be below long_period %d: %w", s.short, s.long, domain.ErrValidation)
	}
	s.qty = cfg.Qty
	s.state = make(map[string]*emaState, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		s.state[sym] = &emaState{short: NewEMA(s.short), long: NewEMA(s.long)}
	}
	return nil
}

// OnTick implements Strategy.
func (s *EMACrossover) OnTick(_ context.Context, tick domain.Tick) ([]domain.TradeSignal, error) {
	st, ok := s.state[tick.Symbol]
	if !ok {
		return nil, nil
	}
	st.short.Update(tick.LTP)
	st.long.Update(tick.LTP)
	if !st.short.Ready() || !st.long.Ready() {
		return nil, nil
	}

	shortV, longV := st.short.Value(), st.long.Value()
	switch st.cross.Observe(shortV - longV) {
	case 1:
		reason := fmt.Sprintf("ema(%d) %.2f crossed above ema(%d) %.2f", s.short, shortV, s.long, longV)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideBuy, s.qty, tick.LTP, reason)}, nil
	case -1:
		reason := fmt.Sprintf("ema(%d) %.2f crossed below ema(%d) %.2f", s.short, shortV, s.long, longV)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideSell, s.qty, tick.LTP, reason)}, nil
	}
	return nil, nil
}

// Close implements Strategy.
func (s *EMACrossover) Close() error {
	s.state = nil
	return nil
}

var _ Strategy = (*EMACrossover)(nil)
