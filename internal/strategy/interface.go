// Package strategy implements the signal engine: a closed set of indicator
// strategies evaluated against the tick stream, with exactly one strategy
// active at a time.
package strategy

import (
	"context"
	"log/slog"

	"github.com/quantbay/tradebot/internal/domain"
)

// Strategy defines the contract for trading strategies. OnTick is invoked
// from the feed consumer goroutine, one tick at a time, so implementations
// keep per-symbol state without locking.
type Strategy interface {
	Name() string

	// Init validates the config and prepares internal state. It must fail
	// fast on bad parameters; the engine refuses to activate a strategy
	// whose Init returns an error.
	Init(ctx context.Context, cfg domain.StrategyConfig) error

	// OnTick evaluates one tick and returns zero or more signals.
	OnTick(ctx context.Context, tick domain.Tick) ([]domain.TradeSignal, error)

	Close() error
}

// Deps carries the collaborators a strategy constructor may need.
type Deps struct {
	Logger *slog.Logger
	Chains domain.OptionsChainResolver
}

// paramOr reads a named parameter with a fallback default.
func paramOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}
