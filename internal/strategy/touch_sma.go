package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantbay/tradebot/internal/domain"
)

// optionsTouchSMA trades an ATM CE/PE pair off the underlying touching its
// moving average. A green candle crossing up through the SMA buys both legs;
// a red candle crossing down through it sells them. A per-symbol side latch
// keeps the same signal from repeating on consecutive ticks.
type optionsTouchSMA struct {
	name   string
	logger *slog.Logger
	chains domain.OptionsChainResolver

	legs  map[string]optionLegs
	state map[string]*touchState
}

type touchState struct {
	sma      *SMA
	prev     float64
	lastSide domain.OrderSide
}

// Name implements Strategy.
func (s *optionsTouchSMA) Name() string { return s.name }

// Init resolves the legs for every underlying up front, same as the
// volatility strategies.
func (s *optionsTouchSMA) Init(ctx context.Context, cfg domain.StrategyConfig) error {
	if s.chains == nil {
		return fmt.Errorf("no options chain resolver configured: %w", domain.ErrValidation)
	}
	if cfg.Expiry == "" {
		return fmt.Errorf("expiry is required: %w", domain.ErrValidation)
	}
	length := int(paramOr(cfg.Params, "length", 21))
	if length <= 1 {
		return fmt.Errorf("length must be > 1: %w", domain.ErrValidation)
	}
	offset := int(paramOr(cfg.Params, "offset", 0))
	if offset < 0 {
		offset = 0
	}

	s.legs = make(map[string]optionLegs, len(cfg.Symbols))
	s.state = make(map[string]*touchState, len(cfg.Symbols))
	for _, underlying := range cfg.Symbols {
		chain, err := s.chains.Chain(ctx, underlying, cfg.Expiry)
		if err != nil {
			return fmt.Errorf("resolve chain %s %s: %w", underlying, cfg.Expiry, err)
		}
		ce, pe, err := pickLegs(chain, offset)
		if err != nil {
			return fmt.Errorf("pick legs %s: %w", underlying, err)
		}
		lot := chain.LotSize
		if lot <= 0 {
			lot = domain.LotSize(underlying)
		}
		s.legs[underlying] = optionLegs{ce: ce, pe: pe, qty: cfg.Qty * lot}
		s.state[underlying] = &touchState{sma: NewSMA(length)}
	}
	return nil
}

// OnTick implements Strategy. A buy enters both legs, a sell exits them.
func (s *optionsTouchSMA) OnTick(_ context.Context, tick domain.Tick) ([]domain.TradeSignal, error) {
	st, ok := s.state[tick.Symbol]
	if !ok {
		return nil, nil
	}
	st.sma.Update(tick.LTP)
	if !st.sma.Ready() {
		return nil, nil
	}

	sma := st.sma.Value()
	prev := st.prev
	st.prev = tick.LTP

	green := tick.LTP >= prev
	var side domain.OrderSide
	switch {
	case green && prev <= sma && sma <= tick.LTP:
		side = domain.OrderSideBuy
	case !green && prev >= sma && sma >= tick.LTP:
		side = domain.OrderSideSell
	default:
		return nil, nil
	}
	if side == st.lastSide {
		return nil, nil
	}
	st.lastSide = side

	legs := s.legs[tick.Symbol]
	reason := fmt.Sprintf("%s touched SMA %.2f from %.2f to %.2f", tick.Symbol, sma, prev, tick.LTP)
	return []domain.TradeSignal{
		newSignal(s.name, legs.ce, side, legs.qty, 0, reason),
		newSignal(s.name, legs.pe, side, legs.qty, 0, reason),
	}, nil
}

// Close implements Strategy.
func (s *optionsTouchSMA) Close() error {
	s.state = nil
	s.legs = nil
	return nil
}

// NewOptionsTouchSMA creates the SMA-touch options strategy.
func NewOptionsTouchSMA(logger *slog.Logger, chains domain.OptionsChainResolver) Strategy {
	return &optionsTouchSMA{
		name:   string(domain.StrategyOptionsTouchSMA),
		logger: logger.With(slog.String("strategy", string(domain.StrategyOptionsTouchSMA))),
		chains: chains,
	}
}

var _ Strategy = (*optionsTouchSMA)(nil)
