package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantbay/tradebot/internal/domain"
)

// RSIReversal buys when the RSI climbs back out of the oversold zone and
// sells when it falls back out of the overbought zone. A per-symbol latch
// suppresses repeats; it clears while the RSI sits between the two bands.
type RSIReversal struct {
	logger     *slog.Logger
	qty        int64
	period     int
	oversold   float64
	overbought float64
	state      map[string]*rsiState
}

type rsiState struct {
	rsi   *RSI
	prev  float64
	ready bool
	latch sideLatch
}

// NewRSIReversal creates an uninitialized RSIReversal.
func NewRSIReversal(logger *slog.Logger) *RSIReversal {
	return &RSIReversal{logger: logger.With(slog.String("strategy", string(domain.StrategyRSI)))}
}

// Name implements Strategy.
func (s *RSIReversal) Name() string { return string(domain.StrategyRSI) }

// Init implements Strategy.
func (s *RSIReversal) Init(_ context.Context, cfg domain.StrategyConfig) error {
	s.period = int(paramOr(cfg.Params, "period", 14))
	s.oversold = paramOr(cfg.Params, "oversold", 30)
	s.overbought = paramOr(cfg.Params, "overbought", 70)
	if s.period <= 1 {
		return fmt.Errorf("period must be > 1: %w", domain.ErrValidation)
	}
	if s.oversold <= 0 || s.overbought >= 100 || s.oversold >= s.overbought {
		return fmt.Errorf("bands must satisfy 0 < oversold < overbought < 100: %w", domain.ErrValidation)
	}
	s.qty = cfg.Qty
	s.state = make(map[string]*rsiState, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		s.state[sym] = &rsiState{rsi: NewRSI(s.period)}
	}
	return nil
}

// OnTick implements Strategy.
func (s *RSIReversal) OnTick(_ context.Context, tick domain.Tick) ([]domain.TradeSignal, error) {
	st, ok := s.state[tick.Symbol]
	if !ok {
		return nil, nil
	}
	st.rsi.Update(tick.LTP)
	if !st.rsi.Ready() {
		return nil, nil
	}

	cur := st.rsi.Value()
	defer func() { st.prev, st.ready = cur, true }()
	if !st.ready {
		return nil, nil
	}

	if cur > s.oversold && cur < s.overbought {
		st.latch.Reset()
	}

	switch {
	case st.prev < s.oversold && cur >= s.oversold:
		if !st.latch.Try(domain.OrderSideBuy) {
			return nil, nil
		}
		reason := fmt.Sprintf("rsi(%d) %.1f recovered above oversold %.0f", s.period, cur, s.oversold)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideBuy, s.qty, tick.LTP, reason)}, nil
	case st.prev > s.overbought && cur <= s.overbought:
		if !st.latch.Try(domain.OrderSideSell) {
			return nil, nil
		}
		reason := fmt.Sprintf("rsi(%d) %.1f dropped below overbought %.0f", s.period, cur, s.overbought)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideSell, s.qty, tick.LTP, reason)}, nil
	}
	return nil, nil
}

// Close implements Strategy.
func (s *RSIReversal) Close() error {
	s.state = nil
	return nil
}

var _ Strategy = (*RSIReversal)(nil)
