package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
)

// Engine owns the single active strategy slot. It receives ticks from the
// feed, delegates them to the active strategy, and forwards resulting
// signals to the signal channel consumed by the order router. Start and Stop
// swap the slot atomically: the outgoing instance stops seeing ticks before
// the incoming one starts.
type Engine struct {
	registry  *Registry
	deps      Deps
	signalCh  chan<- domain.TradeSignal
	signalTTL time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	active    Strategy
	inflight  *sync.WaitGroup
	cfg       domain.StrategyConfig
	symbols   map[string]struct{}
	startedAt time.Time

	signalCount int64
	dropped     int64
	recent      []domain.TradeSignal
	recentLimit int
}

// NewEngine creates an Engine. signalCh is where emitted signals go; the
// router drains it. signalTTL is stamped onto signals that carry no expiry.
func NewEngine(registry *Registry, deps Deps, signalCh chan<- domain.TradeSignal, signalTTL time.Duration, recentLimit int, logger *slog.Logger) *Engine {
	if recentLimit <= 0 {
		recentLimit = 50
	}
	return &Engine{
		registry:    registry,
		deps:        deps,
		signalCh:    signalCh,
		signalTTL:   signalTTL,
		logger:      logger.With(slog.String("component", "strategy_engine")),
		recentLimit: recentLimit,
	}
}

// Start validates cfg, builds a fresh instance, runs its Init, and swaps it
// into the active slot. Any previously active strategy is closed. Validation
// failures leave the current strategy untouched.
func (e *Engine) Start(ctx context.Context, cfg domain.StrategyConfig) error {
	if !domain.ValidStrategyType(cfg.Type) {
		return fmt.Errorf("strategy: start %q: %w", cfg.Type, domain.ErrValidation)
	}
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("strategy: start %s: empty symbols: %w", cfg.Type, domain.ErrValidation)
	}
	if cfg.Qty <= 0 {
		return fmt.Errorf("strategy: start %s: qty must be positive: %w", cfg.Type, domain.ErrValidation)
	}

	factory, err := e.registry.Get(cfg.Type)
	if err != nil {
		return err
	}
	next := factory(e.deps)
	if err := next.Init(ctx, cfg); err != nil {
		_ = next.Close()
		return fmt.Errorf("strategy: init %s: %w", cfg.Type, err)
	}

	symbols := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[s] = struct{}{}
	}

	e.mu.Lock()
	prev := e.active
	prevWG := e.inflight
	e.active = next
	e.inflight = &sync.WaitGroup{}
	e.cfg = cfg
	e.symbols = symbols
	e.startedAt = time.Now()
	e.signalCount = 0
	e.dropped = 0
	e.recent = nil
	e.mu.Unlock()

	if prev != nil {
		// Let any tick already inside the outgoing strategy finish
		// before Close tears down its state.
		prevWG.Wait()
		if err := prev.Close(); err != nil {
			e.logger.Warn("previous strategy close failed", slog.String("error", err.Error()))
		}
	}
	e.logger.Info("strategy started",
		slog.String("type", string(cfg.Type)),
		slog.Any("symbols", cfg.Symbols),
		slog.Int64("qty", cfg.Qty),
	)
	return nil
}

// Stop clears the active slot. It returns ErrNoActiveStrategy when nothing
// is running.
func (e *Engine) Stop() error {
	e.mu.Lock()
	prev := e.active
	prevWG := e.inflight
	e.active = nil
	e.inflight = nil
	e.symbols = nil
	e.mu.Unlock()

	if prev == nil {
		return domain.ErrNoActiveStrategy
	}
	prevWG.Wait()
	if err := prev.Close(); err != nil {
		e.logger.Warn("strategy close failed", slog.String("error", err.Error()))
	}
	e.logger.Info("strategy stopped", slog.String("type", prev.Name()))
	return nil
}

// Status reports the active strategy and its recent signals, newest first.
func (e *Engine) Status() domain.StrategyStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := domain.StrategyStatus{
		Active:      e.active != nil,
		SignalCount: e.signalCount,
		Dropped:     e.dropped,
		Recent:      make([]domain.TradeSignal, 0, len(e.recent)),
	}
	if e.active != nil {
		st.Config = e.cfg
		st.StartedAt = e.startedAt
	}
	for i := len(e.recent) - 1; i >= 0; i-- {
		st.Recent = append(st.Recent, e.recent[i])
	}
	return st
}

// OnTick delegates a tick to the active strategy. Ticks for symbols outside
// the strategy's set are ignored. Called from the feed consumer goroutine.
func (e *Engine) OnTick(ctx context.Context, tick domain.Tick) {
	e.mu.Lock()
	active := e.active
	wg := e.inflight
	if active != nil {
		if _, ok := e.symbols[tick.Symbol]; !ok {
			active = nil
		}
	}
	if active != nil {
		// Add under the lock so Start/Stop cannot observe a zero count
		// while this tick is about to enter the strategy.
		wg.Add(1)
	}
	e.mu.Unlock()

	if active == nil {
		return
	}
	defer wg.Done()

	signals, err := active.OnTick(ctx, tick)
	if err != nil {
		e.logger.Warn("strategy tick error",
			slog.String("strategy", active.Name()),
			slog.String("symbol", tick.Symbol),
			slog.String("error", err.Error()),
		)
		return
	}
	e.emit(signals)
}

// emit forwards signals to the router channel without blocking. A full
// channel drops the signal and counts it; the feed must never stall on a
// slow router.
func (e *Engine) emit(signals []domain.TradeSignal) {
	for _, sig := range signals {
		if sig.ExpiresAt.IsZero() && e.signalTTL > 0 {
			sig.ExpiresAt = sig.CreatedAt.Add(e.signalTTL)
		}
		select {
		case e.signalCh <- sig:
			e.remember(sig)
			e.logger.Debug("signal emitted",
				slog.String("signal_id", sig.ID),
				slog.String("strategy", sig.Strategy),
				slog.String("symbol", sig.Symbol),
				slog.String("side", string(sig.Side)),
			)
		default:
			e.mu.Lock()
			e.dropped++
			e.mu.Unlock()
			e.logger.Warn("signal channel full, dropping",
				slog.String("signal_id", sig.ID),
				slog.String("symbol", sig.Symbol),
			)
		}
	}
}

func (e *Engine) remember(sig domain.TradeSignal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signalCount++
	e.recent = append(e.recent, sig)
	if overflow := len(e.recent) - e.recentLimit; overflow > 0 {
		e.recent = append([]domain.TradeSignal(nil), e.recent[overflow:]...)
	}
}
