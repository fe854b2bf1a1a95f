package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantbay/tradebot/internal/domain"
)

// SupportResistance buys tests of the rolling low and sells tests of the
// rolling high, within a percentage tolerance. The latch re-arms once price
// moves back between the two levels.
type SupportResistance struct {
	logger    *slog.Logger
	qty       int64
	lookback  int
	tolerance float64
	state     map[string]*srState
}

type srState struct {
	window []float64
	latch  sideLatch
}

// NewSupportResistance creates an uninitialized SupportResistance.
func NewSupportResistance(logger *slog.Logger) *SupportResistance {
	return &SupportResistance{logger: logger.With(slog.String("strategy", string(domain.StrategySupportResistance)))}
}

// Name implements Strategy.
func (s *SupportResistance) Name() string { return string(domain.StrategySupportResistance) }

// Init implements Strategy.
func (s *SupportResistance) Init(_ context.Context, cfg domain.StrategyConfig) error {
	s.lookback = int(paramOr(cfg.Params, "lookback", 50))
	s.tolerance = paramOr(cfg.Params, "tolerance", 0.01)
	if s.lookback <= 2 {
		return fmt.Errorf("lookback must be > 2: %w", domain.ErrValidation)
	}
	if s.tolerance <= 0 || s.tolerance >= 0.5 {
		return fmt.Errorf("tolerance must be in (0, 0.5): %w", domain.ErrValidation)
	}
	s.qty = cfg.Qty
	s.state = make(map[string]*srState, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		s.state[sym] = &srState{window: make([]float64, 0, s.lookback)}
	}
	return nil
}

// OnTick implements Strategy.
func (s *SupportResistance) OnTick(_ context.Context, tick domain.Tick) ([]domain.TradeSignal, error) {
	st, ok := s.state[tick.Symbol]
	if !ok {
		return nil, nil
	}

	// Levels come from the window before this tick, otherwise the current
	// price is always its own support or resistance.
	if len(st.window) == s.lookback {
		support, resistance := st.window[0], st.window[0]
		for _, p := range st.window[1:] {
			if p < support {
				support = p
			}
			if p > resistance {
				resistance = p
			}
		}

		buyLevel := support * (1 + s.tolerance)
		sellLevel := resistance * (1 - s.tolerance)

		if tick.LTP > buyLevel && tick.LTP < sellLevel {
			st.latch.Reset()
		}

		if sig := s.evaluate(st, tick, support, resistance, buyLevel, sellLevel); sig != nil {
			s.push(st, tick.LTP)
			return sig, nil
		}
	}

	s.push(st, tick.LTP)
	return nil, nil
}

func (s *SupportResistance) evaluate(st *srState, tick domain.Tick, support, resistance, buyLevel, sellLevel float64) []domain.TradeSignal {
	switch {
	case tick.LTP <= buyLevel:
		if !st.latch.Try(domain.OrderSideBuy) {
			return nil
		}
		reason := fmt.Sprintf("price %.2f testing support %.2f (tol %.1f%%)", tick.LTP, support, s.tolerance*100)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideBuy, s.qty, tick.LTP, reason)}
	case tick.LTP >= sellLevel:
		if !st.latch.Try(domain.OrderSideSell) {
			return nil
		}
		reason := fmt.Sprintf("price %.2f testing resistance %.2f (tol %.1f%%)", tick.LTP, resistance, s.tolerance*100)
		return []domain.TradeSignal{newSignal(s.Name(), tick.Symbol, domain.OrderSideSell, s.qty, tick.LTP, reason)}
	}
	return nil
}

func (s *SupportResistance) push(st *srState, price float64) {
	st.window = append(st.window, price)
	if len(st.window) > s.lookback {
		st.window = st.window[1:]
	}
}

// Close implements Strategy.
func (s *SupportResistance) Close() error {
	s.state = nil
	return nil
}

var _ Strategy = (*SupportResistance)(nil)
