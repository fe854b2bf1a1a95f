package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
)

// Exiter closes positions. Satisfied by the order router.
type Exiter interface {
	SquareOff(ctx context.Context, book domain.Book, symbol string, reason domain.ExitReason, source domain.IntentSource) (*domain.Order, error)
}

// trailState tracks a trailing stop once activated. The peak only
// moves in the position's favor, so the stop never loosens.
type trailState struct {
	active bool
	peak   float64
}

// minuteCandle is one in-progress or completed 1-minute bar.
type minuteCandle struct {
	bucket time.Time
	open   float64
	close_ float64
}

// candleTracker builds 1-minute candles from ticks and keeps the last
// few completed ones for the consecutive-adverse-candle rule.
type candleTracker struct {
	current   *minuteCandle
	completed []minuteCandle
}

func (t *candleTracker) observe(at time.Time, price float64) {
	bucket := at.Truncate(time.Minute)
	if t.current == nil {
		t.current = &minuteCandle{bucket: bucket, open: price, close_: price}
		return
	}
	if bucket.After(t.current.bucket) {
		t.completed = append(t.completed, *t.current)
		if len(t.completed) > 4 {
			t.completed = t.completed[len(t.completed)-4:]
		}
		t.current = &minuteCandle{bucket: bucket, open: price, close_: price}
		return
	}
	t.current.close_ = price
}

// adverseRun counts completed candles, newest backwards, that closed
// against the position's direction.
func (t *candleTracker) adverseRun(long bool) int {
	run := 0
	for i := len(t.completed) - 1; i >= 0; i-- {
		c := t.completed[i]
		adverse := c.close_ < c.open
		if !long {
			adverse = c.close_ > c.open
		}
		if !adverse {
			break
		}
		run++
	}
	return run
}

// RiskMonitor evaluates stop-loss, take-profit, trailing-stop, and
// three-adverse-candle rules against open positions on a fixed cycle.
// Exits route through the same order path as everything else, so a
// risk exit shows up in the ledger like any other order.
type RiskMonitor struct {
	book     *PositionBook
	quotes   *QuoteService
	exiter   Exiter
	logger   *slog.Logger
	interval time.Duration
	trade    domain.Book
	now      func() time.Time

	mu       sync.Mutex
	cfg      domain.RiskConfig
	trails   map[string]*trailState
	candles  map[string]*candleTracker
	inflight map[string]bool
}

func NewRiskMonitor(cfg domain.RiskConfig, book *PositionBook, quotes *QuoteService, exiter Exiter, trade domain.Book, interval time.Duration, logger *slog.Logger) *RiskMonitor {
	if interval <= 0 {
		interval = time.Second
	}
	return &RiskMonitor{
		book:     book,
		quotes:   quotes,
		exiter:   exiter,
		logger:   logger.With(slog.String("component", "risk")),
		interval: interval,
		trade:    trade,
		now:      time.Now,
		cfg:      cfg,
		trails:   make(map[string]*trailState),
		candles:  make(map[string]*candleTracker),
		inflight: make(map[string]bool),
	}
}

// Run evaluates all open positions once per interval until cancelled.
func (m *RiskMonitor) Run(ctx context.Context) error {
	m.logger.Info("risk monitor started", slog.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// OnTick feeds the 1-minute candle builder. Called from the feed
// consumer goroutine.
func (m *RiskMonitor) OnTick(tick domain.Tick) {
	if tick.LTP <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.candles[tick.Symbol]
	if !ok {
		t = &candleTracker{}
		m.candles[tick.Symbol] = t
	}
	t.observe(tick.Received, tick.LTP)
}

// Limits returns the current rule set.
func (m *RiskMonitor) Limits() domain.RiskConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := domain.RiskConfig{Defaults: m.cfg.Defaults, PerSymbol: make(map[string]domain.RiskLimits, len(m.cfg.PerSymbol))}
	for s, l := range m.cfg.PerSymbol {
		out.PerSymbol[s] = l
	}
	return out
}

// SetDefaults replaces the global limits at runtime.
func (m *RiskMonitor) SetDefaults(l domain.RiskLimits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Defaults = l
}

// SetSymbolLimits installs a per-symbol override, resetting any
// trailing state so stale peaks from the old rules do not carry over.
func (m *RiskMonitor) SetSymbolLimits(symbol string, l domain.RiskLimits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.PerSymbol == nil {
		m.cfg.PerSymbol = make(map[string]domain.RiskLimits)
	}
	m.cfg.PerSymbol[symbol] = l
	delete(m.trails, string(m.trade)+"|"+symbol)
}

// Check runs one evaluation cycle over the open positions.
func (m *RiskMonitor) Check(ctx context.Context) {
	positions := m.book.Positions(m.trade)
	if len(positions) == 0 {
		m.pruneClosed(nil)
		return
	}

	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	snapshot, err := m.quotes.Snapshot(ctx, symbols)
	if err != nil {
		m.logger.Error("risk snapshot failed", slog.String("error", err.Error()))
		return
	}

	open := make(map[string]bool, len(positions))
	for _, pos := range positions {
		if pos.Qty == 0 {
			continue
		}
		open[pos.Symbol] = true
		q, ok := snapshot[pos.Symbol]
		if !ok || q.LTP <= 0 {
			continue
		}
		m.evaluate(ctx, pos, q.LTP)
	}
	m.pruneClosed(open)
}

func (m *RiskMonitor) evaluate(ctx context.Context, pos domain.Position, ltp float64) {
	key := string(m.trade) + "|" + pos.Symbol

	m.mu.Lock()
	limits := m.cfg.For(pos.Symbol)
	if !limits.Enabled() || m.inflight[key] {
		m.mu.Unlock()
		return
	}

	reason, triggered := m.rule(key, pos, ltp, limits)
	if !triggered {
		m.mu.Unlock()
		return
	}
	// In-flight marker: the next cycle sees this symbol again before the
	// exit order lands, and must not route a second one.
	m.inflight[key] = true
	m.mu.Unlock()

	m.logger.Warn("risk exit triggered",
		slog.String("symbol", pos.Symbol),
		slog.String("reason", string(reason)),
		slog.Float64("ltp", ltp),
		slog.Float64("avg_price", pos.AvgPrice),
		slog.Int64("qty", pos.Qty))

	_, err := m.exiter.SquareOff(ctx, m.trade, pos.Symbol, reason, domain.SourceRisk)

	m.mu.Lock()
	delete(m.inflight, key)
	if err == nil {
		delete(m.trails, key)
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("risk exit failed",
			slog.String("symbol", pos.Symbol),
			slog.String("error", err.Error()))
	}
}

// rule applies the exit rules in precedence order: stop-loss, take-
// profit, trailing stop, three adverse candles. Caller holds the lock.
func (m *RiskMonitor) rule(key string, pos domain.Position, ltp float64, limits domain.RiskLimits) (domain.ExitReason, bool) {
	long := pos.Qty > 0
	move := (ltp - pos.AvgPrice) / pos.AvgPrice
	if !long {
		move = -move
	}

	if limits.StopLossPct > 0 && move <= -limits.StopLossPct {
		return domain.ExitStopLoss, true
	}
	if limits.TakeProfitPct > 0 && move >= limits.TakeProfitPct {
		return domain.ExitTakeProfit, true
	}

	if limits.TrailActivation > 0 && limits.TrailDistance > 0 {
		profitPts := ltp - pos.AvgPrice
		if !long {
			profitPts = pos.AvgPrice - ltp
		}
		ts, ok := m.trails[key]
		if !ok {
			ts = &trailState{}
			m.trails[key] = ts
		}
		if !ts.active && profitPts >= limits.TrailActivation {
			ts.active = true
			ts.peak = ltp
		}
		if ts.active {
			if long {
				if ltp > ts.peak {
					ts.peak = ltp
				}
				if ltp <= ts.peak-limits.TrailDistance {
					return domain.ExitTrailing, true
				}
			} else {
				if ltp < ts.peak {
					ts.peak = ltp
				}
				if ltp >= ts.peak+limits.TrailDistance {
					return domain.ExitTrailing, true
				}
			}
		}
	}

	if limits.ExitThreeCandle {
		if t, ok := m.candles[pos.Symbol]; ok && t.adverseRun(long) >= 3 {
			return domain.ExitThreeCandles, true
		}
	}
	return "", false
}

// pruneClosed drops trailing and candle state for symbols that no
// longer have an open position.
func (m *RiskMonitor) pruneClosed(open map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := string(m.trade) + "|"
	for key := range m.trails {
		sym := key[len(prefix):]
		if !open[sym] {
			delete(m.trails, key)
		}
	}
	for sym := range m.candles {
		if !open[sym] {
			delete(m.candles, sym)
		}
	}
}

