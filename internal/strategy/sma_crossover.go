package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantbay/tradebot/internal/domain"
)

// SMACrossover trades simple moving average crossovers: BUY when the short
// average moves above the long one, SELL when it moves below. Signals fire
// only on the transition between two consecutive evaluations.
type SMACrossover struct {
	logger *slog.Logger
	qty    int64
	short  int
	long   int
	state  map[string]*smaState
}

type smaState struct {
	short *SMA
	long  *SMA
	cross crosser
}

// NewSMACrossover creates an uninitialized SMACrossover.
func NewSMACrossover(logger *slog.Logger) *SMACrossover {
	return &SMACrossover{logger: logger.With(slog.String("strategy", string(domain.StrategySMACrossover)))}
}

// Name implements Strategy.
func (s *SMACrossover) Name() string { return string(domain.StrategySMACrossover) }

// Init implements Strategy.
func (s *SMACrossover) Init(_ context.Context, cfg domain.StrategyConfig) error {
	s.short = int(paramOr(cfg.Params, "short_period", 20))
	s.long = int(paramOr(cfg.Params, "long_period", 50))
	if s.short <= 0 || s.long <= 0 {
		return fmt.Errorf("periods must be positive: %w", domain.ErrValidation)
	}
	if s.short >= s.long {
		return fmt.Errorf("short_period %d must be below long_period %d: %w", s.short, s.long, domain.ErrValidation)
	}
	s.qty = cfg.Qty
	s.state = make(map[string]*smaState, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		s.state[sym] = &smaState{short: NewSMA(s.short), long: NewSMA(s.long)}
	}
	return nil
}

// OnTick implements Strategy.
func (s *SMACrossover) OnTick(_ context.Context, tick domain.Tick) ([]domain.TradeSignal, error) {
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
		reason := fmt.Sprintf("sma(%d) %.2f crossed above sma(%d) %.2f", s.short, shortV, s.long, longV)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideBuy, s.qty, tick.LTP, reason)}, nil
	case -1:
		reason := fmt.Sprintf("sma(%d) %.2f crossed below sma(%d) %.2f", s.short, shortV, s.long, longV)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideSell, s.qty, tick.LTP, reason)}, nil
	}
	return nil, nil
}

// Close implements Strategy.
func (s *SMACrossover) Close() error {
	s.state = nil
	return nil
}

var _ Strategy = (*SMACrossover)(nil)
