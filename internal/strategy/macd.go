package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantbay/tradebot/internal/domain"
)

// MACDCrossover trades crossings of the MACD line against its signal line.
type MACDCrossover struct {
	logger *slog.Logger
	qty    int64
	fast   int
	slow   int
	signal int
	state  map[string]*macdState
}

type macdState struct {
	macd  *MACDLine
	cross crosser
}

// NewMACDCrossover creates an uninitialized MACDCrossover.
func NewMACDCrossover(logger *slog.Logger) *MACDCrossover {
	return &MACDCrossover{logger: logger.With(slog.String("strategy", string(domain.StrategyMACD)))}
}

// Name implements Strategy.
func (s *MACDCrossover) Name() string { return string(domain.StrategyMACD) }

// Init implements Strategy.
func (s *MACDCrossover) Init(_ context.Context, cfg domain.StrategyConfig) error {
	s.fast = int(paramOr(cfg.Params, "fast_period", 12))
	s.slow = int(paramOr(cfg.Params, "slow_period", 26))
	s.signal = int(paramOr(cfg.Params, "signal_period", 9))
	if s.fast <= 0 || s.slow <= 0 || s.signal <= 0 {
		return fmt.Errorf("periods must be positive: %w", domain.ErrValidation)
	}
	if s.fast >= s.slow {
		return fmt.Errorf("fast_period %d must be below slow_period %d: %w", s.fast, s.slow, domain.ErrValidation)
	}
	s.qty = cfg.Qty
	s.state = make(map[string]*macdState, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		s.state[sym] = &macdState{macd: NewMACDLine(s.fast, s.slow, s.signal)}
	}
	return nil
}

// OnTick implements Strategy.
func (s *MACDCrossover) OnTick(_ context.Context, tick domain.Tick) ([]domain.TradeSignal, error) {
	st, ok := s.state[tick.Symbol]
	if !ok {
		return nil, nil
	}
	st.macd.Update(tick.LTP)
	if !st.macd.Ready() {
		return nil, nil
	}

	macd, sig := st.macd.Values()
	switch st.cross.Observe(macd - sig) {
	case 1:
		reason := fmt.Sprintf("macd %.3f crossed above signal %.3f", macd, sig)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideBuy, s.qty, tick.LTP, reason)}, nil
	case -1:
		reason := fmt.Sprintf("macd %.3f crossed below signal %.3f", macd, sig)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideSell, s.qty, tick.LTP, reason)}, nil
	}
	return nil, nil
}

// Close implements Strategy.
func (s *MACDCrossover) Close() error {
	s.state = nil
	return nil
}

var _ Strategy = (*MACDCrossover)(nil)
