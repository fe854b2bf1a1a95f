package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantbay/tradebot/internal/domain"
)

// BollingerReversion fades band breaks: BUY below the lower band, SELL above
// the upper. The per-symbol latch clears once price returns past the middle
// band, so one excursion produces one signal.
type BollingerReversion struct {
	logger *slog.Logger
	qty    int64
	period int
	mult   float64
	state  map[string]*bollState
}

type bollState struct {
	sma   *SMA
	latch sideLatch
}

// NewBollingerReversion creates an uninitialized BollingerReversion.
func NewBollingerReversion(logger *slog.Logger) *BollingerReversion {
	return &BollingerReversion{logger: logger.With(slog.String("strategy", string(domain.StrategyBollinger)))}
}

// Name implements Strategy.
func (s *BollingerReversion) Name() string { return string(domain.StrategyBollinger) }

// Init implements Strategy.
func (s *BollingerReversion) Init(_ context.Context, cfg domain.StrategyConfig) error {
	s.period = int(paramOr(cfg.Params, "period", 20))
	s.mult = paramOr(cfg.Params, "std_mult", 2.0)
	if s.period <= 1 {
		return fmt.Errorf("period must be > 1: %w", domain.ErrValidation)
	}
	if s.mult <= 0 {
		return fmt.Errorf("std_mult must be positive: %w", domain.ErrValidation)
	}
	s.qty = cfg.Qty
	s.state = make(map[string]*bollState, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		s.state[sym] = &bollState{sma: NewSMA(s.period)}
	}
	return nil
}

// OnTick implements Strategy.
func (s *BollingerReversion) OnTick(_ context.Context, tick domain.Tick) ([]domain.TradeSignal, error) {
	st, ok := s.state[tick.Symbol]
	if !ok {
		return nil, nil
	}
	st.sma.Update(tick.LTP)
	if !st.sma.Ready() {
		return nil, nil
	}

	mid := st.sma.Value()
	band := s.mult * st.sma.StdDev()
	lower, upper := mid-band, mid+band

	// Crossing back past the middle re-arms the latch for the next break.
	if st.latch.last == domain.OrderSideBuy && tick.LTP >= mid {
		st.latch.Reset()
	}
	if st.latch.last == domain.OrderSideSell && tick.LTP <= mid {
		st.latch.Reset()
	}

	switch {
	case tick.LTP < lower:
		if !st.latch.Try(domain.OrderSideBuy) {
			return nil, nil
		}
		reason := fmt.Sprintf("price %.2f below lower band %.2f (mid %.2f)", tick.LTP, lower, mid)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideBuy, s.qty, tick.LTP, reason)}, nil
	case tick.LTP > upper:
		if !st.latch.Try(domain.OrderSideSell) {
			return nil, nil
		}
		reason := fmt.Sprintf("price %.2f above upper band %.2f (mid %.2f)", tick.LTP, upper, mid)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideSell, s.qty, tick.LTP, reason)}, nil
	}
	return nil, nil
}

// Close implements Strategy.
func (s *BollingerReversion) Close() error {
	s.state = nil
	return nil
}

var _ Strategy = (*BollingerReversion)(nil)
