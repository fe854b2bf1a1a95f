package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quantbay/tradebot/internal/domain"
)

// Factory builds a fresh strategy instance. Each activation gets its own
// instance so indicator state never leaks across runs.
type Factory func(deps Deps) Strategy

// Registry maps strategy types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.StrategyType]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[domain.StrategyType]Factory)}
}

// Register adds a factory under the given type. Registering the same type
// twice is a programming error and panics.
func (r *Registry) Register(t domain.StrategyType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[t]; dup {
		panic(fmt.Sprintf("strategy: duplicate registration for %q", t))
	}
	r.factories[t] = f
}

// Get returns the factory for a type.
func (r *Registry) Get(t domain.StrategyType) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[t]
	if !ok {
		return nil, fmt.Errorf("strategy: unknown type %q: %w", t, domain.ErrNotFound)
	}
	return f, nil
}

// List returns registered types in sorted order.
func (r *Registry) List() []domain.StrategyType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.StrategyType, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultRegistry returns a Registry with every built-in strategy registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(domain.StrategySMACrossover, func(d Deps) Strategy { return NewSMACrossover(d.Logger) })
	r.Register(domain.StrategyEMACrossover, func(d Deps) Strategy { return NewEMACrossover(d.Logger) })
	r.Register(domain.StrategyRSI, func(d Deps) Strategy { return NewRSIReversal(d.Logger) })
	r.Register(domain.StrategyMACD, func(d Deps) Strategy { return NewMACDCrossover(d.Logger) })
	r.Register(domain.StrategyBollinger, func(d Deps) Strategy { return NewBollingerReversion(d.Logger) })
	r.Register(domain.StrategySupportResistance, func(d Deps) Strategy { return NewSupportResistance(d.Logger) })
	r.Register(domain.StrategyOptionsStraddle, func(d Deps) Strategy { return NewOptionsStraddle(d.Logger, d.Chains) })
	r.Register(domain.StrategyOptionsStrangle, func(d Deps) Strategy { return NewOptionsStrangle(d.Logger, d.Chains) })
	r.Register(domain.StrategyOptionsTouchSMA, func(d Deps) Strategy { return NewOptionsTouchSMA(d.Logger, d.Chains) })
	return r
}
