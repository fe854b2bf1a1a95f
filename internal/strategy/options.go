package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/quantbay/tradebot/internal/domain"
)

// optionsVol is the shared machinery behind the straddle and strangle
// strategies: watch realized volatility of the underlying, and when it
// spikes past the threshold, buy a CE/PE pair around the ATM strike. The
// latch re-arms when volatility drops back under the threshold.
type optionsVol struct {
	name      string
	otmOffset int
	logger    *slog.Logger
	chains    domain.OptionsChainResolver

	qty       int64
	threshold float64
	legs      map[string]optionLegs
	state     map[string]*volState
}

type optionLegs struct {
	ce  string
	pe  string
	qty int64
}

type volState struct {
	vol   *ReturnsVol
	armed bool
}

// Name implements Strategy.
func (s *optionsVol) Name() string { return s.name }

// Init resolves the chain and the two legs for every underlying up front, so
// an unresolvable strike fails activation instead of a live trigger.
func (s *optionsVol) Init(ctx context.Context, cfg domain.StrategyConfig) error {
	if s.chains == nil {
		return fmt.Errorf("no options chain resolver configured: %w", domain.ErrValidation)
	}
	if cfg.Expiry == "" {
		return fmt.Errorf("expiry is required: %w", domain.ErrValidation)
	}
	s.threshold = paramOr(cfg.Params, "vol_threshold", 0.02)
	if s.threshold <= 0 {
		return fmt.Errorf("vol_threshold must be positive: %w", domain.ErrValidation)
	}
	window := int(paramOr(cfg.Params, "vol_window", 20))
	if window <= 2 {
		return fmt.Errorf("vol_window must be > 2: %w", domain.ErrValidation)
	}

	s.qty = cfg.Qty
	s.legs = make(map[string]optionLegs, len(cfg.Symbols))
	s.state = make(map[string]*volState, len(cfg.Symbols))
	for _, underlying := range cfg.Symbols {
		chain, err := s.chains.Chain(ctx, underlying, cfg.Expiry)
		if err != nil {
			return fmt.Errorf("resolve chain %s %s: %w", underlying, cfg.Expiry, err)
		}
		ce, pe, err := pickLegs(chain, s.otmOffset)
		if err != nil {
			return fmt.Errorf("pick legs %s: %w", underlying, err)
		}
		lot := chain.LotSize
		if lot <= 0 {
			lot = domain.LotSize(underlying)
		}
		s.legs[underlying] = optionLegs{ce: ce, pe: pe, qty: cfg.Qty * lot}
		s.state[underlying] = &volState{vol: NewReturnsVol(window), armed: true}
	}
	return nil
}

// pickLegs selects the CE/PE tradingsymbols. Offset 0 puts both legs at the
// ATM strike; a positive offset moves the CE that many strikes up and the PE
// that many strikes down.
func pickLegs(chain domain.OptionChain, offset int) (ce, pe string, err error) {
	if len(chain.Strikes) == 0 {
		return "", "", domain.ErrNotFound
	}
	strikes := make([]domain.OptionStrike, len(chain.Strikes))
	copy(strikes, chain.Strikes)
	sort.Slice(strikes, func(i, j int) bool { return strikes[i].Strike < strikes[j].Strike })

	atm := len(strikes) / 2
	ceIdx := atm + offset
	if ceIdx >= len(strikes) {
		ceIdx = len(strikes) - 1
	}
	peIdx := atm - offset
	if peIdx < 0 {
		peIdx = 0
	}
	ce, pe = strikes[ceIdx].CESymbol, strikes[peIdx].PESymbol
	if ce == "" || pe == "" {
		return "", "", domain.ErrNotFound
	}
	return ce, pe, nil
}

// OnTick implements Strategy. Ticks carry the underlying's price; signals
// reference the option tradingsymbols.
func (s *optionsVol) OnTick(_ context.Context, tick domain.Tick) ([]domain.TradeSignal, error) {
	st, ok := s.state[tick.Symbol]
	if !ok {
		return nil, nil
	}
	st.vol.Update(tick.LTP)
	if !st.vol.Ready() {
		return nil, nil
	}

	vol := st.vol.Value()
	if vol < s.threshold {
		st.armed = true
		return nil, nil
	}
	if !st.armed {
		return nil, nil
	}
	st.armed = false

	legs := s.legs[tick.Symbol]
	reason := fmt.Sprintf("realized vol %.4f above threshold %.4f on %s", vol, s.threshold, tick.Symbol)
	return []domain.TradeSignal{
		newSignal(s.name, legs.ce, domain.OrderSideBuy, legs.qty, 0, reason),
		newSignal(s.name, legs.pe, domain.OrderSideBuy, legs.qty, 0, reason),
	}, nil
}

// Close implements Strategy.
func (s *optionsVol) Close() error {
	s.state = nil
	s.legs = nil
	return nil
}

// NewOptionsStraddle creates the ATM straddle strategy.
func NewOptionsStraddle(logger *slog.Logger, chains domain.OptionsChainResolver) Strategy {
	return &optionsVol{
		name:   string(domain.StrategyOptionsStraddle),
		logger: logger.With(slog.String("strategy", string(domain.StrategyOptionsStraddle))),
		chains: chains,
	}
}

// optionsStrangle is the OTM variant. Leg distance comes from the
// otm_offset parameter (default 2 strikes).
type optionsStrangle struct {
	optionsVol
}

// NewOptionsStrangle creates the strangle strategy.
func NewOptionsStrangle(logger *slog.Logger, chains domain.OptionsChainResolver) Strategy {
	return &optionsStrangle{optionsVol{
		name:   string(domain.StrategyOptionsStrangle),
		logger: logger.With(slog.String("strategy", string(domain.StrategyOptionsStrangle))),
		chains: chains,
	}}
}

// Init reads otm_offset before delegating to the shared setup.
func (s *optionsStrangle) Init(ctx context.Context, cfg domain.StrategyConfig) error {
	s.otmOffset = int(paramOr(cfg.Params, "otm_offset", 2))
	if s.otmOffset < 1 {
		return fmt.Errorf("otm_offset must be >= 1: %w", domain.ErrValidation)
	}
	return s.optionsVol.Init(ctx, cfg)
}

var (
	_ Strategy = (*optionsVol)(nil)
	_ Strategy = (*optionsStrangle)(nil)
)
