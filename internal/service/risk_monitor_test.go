package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbay/tradebot/internal/domain"
)

// recordingExiter records square-off calls and optionally flattens the
// position so the next cycle sees it closed.
type recordingExiter struct {
	book    *PositionBook
	calls   []domain.ExitReason
	symbols []string
	err     error
}

func (e *recordingExiter) SquareOff(ctx context.Context, book domain.Book, symbol string, reason domain.ExitReason, _ domain.IntentSource) (*domain.Order, error) {
	e.calls = append(e.calls, reason)
	e.symbols = append(e.symbols, symbol)
	if e.err != nil {
		return nil, e.err
	}
	if e.book != nil {
		if pos, ok := e.book.Get(book, symbol); ok {
			side := domain.OrderSideSell
			qty := pos.Qty
			if pos.Qty < 0 {
				side = domain.OrderSideBuy
				qty = -pos.Qty
			}
			_ = e.book.ApplyFill(ctx, fill(book, symbol, side, qty, pos.AvgPrice))
		}
	}
	return &domain.Order{ID: "exit", Symbol: symbol}, nil
}

type riskFixture struct {
	monitor *RiskMonitor
	book    *PositionBook
	cache   *memQuoteCache
	exiter  *recordingExiter
}

func newRiskFixture(t *testing.T, limits domain.RiskLimits) *riskFixture {
	t.Helper()
	book, _, cache := newTestBook(t, 1_000_000)
	exiter := &recordingExiter{book: book}
	cfg := domain.RiskConfig{Defaults: limits}
	m := NewRiskMonitor(cfg, book, newTestQuotes(cache), exiter, domain.BookPaper, time.Second, testLogger())
	return &riskFixture{monitor: m, book: book, cache: cache, exiter: exiter}
}

func (f *riskFixture) open(t *testing.T, symbol string, side domain.OrderSide, qty int64, price float64) {
	t.Helper()
	require.NoError(t, f.book.ApplyFill(context.Background(), fill(domain.BookPaper, symbol, side, qty, price)))
}

func TestRiskStopLossLong(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{StopLossPct: 0.02})
	f.open(t, "NIFTY24AUGFUT", domain.OrderSideBuy, 10, 100)

	f.cache.set("NIFTY24AUGFUT", 99)
	f.monitor.Check(context.Background())
	assert.Empty(t, f.exiter.calls, "a 1 pct move does not trip a 2 pct stop")

	f.cache.set("NIFTY24AUGFUT", 97)
	f.monitor.Check(context.Background())
	require.Len(t, f.exiter.calls, 1)
	assert.Equal(t, domain.ExitStopLoss, f.exiter.calls[0])
}

func TestRiskStopLossShort(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{StopLossPct: 0.02})
	f.open(t, "NIFTY24AUGFUT", domain.OrderSideSell, 10, 100)

	f.cache.set("NIFTY24AUGFUT", 103)
	f.monitor.Check(context.Background())
	require.Len(t, f.exiter.calls, 1)
	assert.Equal(t, domain.ExitStopLoss, f.exiter.calls[0])
}

func TestRiskTakeProfit(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{TakeProfitPct: 0.05})
	f.open(t, "NIFTY24AUGFUT", domain.OrderSideBuy, 10, 100)

	f.cache.set("NIFTY24AUGFUT", 105)
	f.monitor.Check(context.Background())
	require.Len(t, f.exiter.calls, 1)
	assert.Equal(t, domain.ExitTakeProfit, f.exiter.calls[0])
}

func TestRiskEvaluatesOnlyTradeBook(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{StopLossPct: 0.02})
	require.NoError(t, f.book.ApplyFill(context.Background(), fill(domain.BookLive, "NIFTY24AUGFUT", domain.OrderSideBuy, 10, 100)))

	f.cache.set("NIFTY24AUGFUT", 90)
	f.monitor.Check(context.Background())
	assert.Empty(t, f.exiter.calls, "live positions are outside a paper monitor's book")
}

func TestRiskTrailingStopLong(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{TrailActivation: 5, TrailDistance: 3})
	f.open(t, "NIFTY24AUGFUT", domain.OrderSideBuy, 10, 100)

	// Below activation: nothing.
	f.cache.set("NIFTY24AUGFUT", 103)
	f.monitor.Check(context.Background())
	assert.Empty(t, f.exiter.calls)

	// Activates at +5 with peak 106, then the peak ratchets to 108.
	f.cache.set("NIFTY24AUGFUT", 106)
	f.monitor.Check(context.Background())
	f.cache.set("NIFTY24AUGFUT", 108)
	f.monitor.Check(context.Background())
	assert.Empty(t, f.exiter.calls)

	// 106 is still above 108-3; 105 is the trigger.
	f.cache.set("NIFTY24AUGFUT", 106)
	f.monitor.Check(context.Background())
	assert.Empty(t, f.exiter.calls)

	f.cache.set("NIFTY24AUGFUT", 105)
	f.monitor.Check(context.Background())
	require.Len(t, f.exiter.calls, 1)
	assert.Equal(t, domain.ExitTrailing, f.exiter.calls[0])
}

func TestRiskTrailingStopShort(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{TrailActivation: 5, TrailDistance: 3})
	f.open(t, "NIFTY24AUGFUT", domain.OrderSideSell, 10, 100)

	f.cache.set("NIFTY24AUGFUT", 94)
	f.monitor.Check(context.Background())
	f.cache.set("NIFTY24AUGFUT", 92)
	f.monitor.Check(context.Background())
	assert.Empty(t, f.exiter.calls)

	f.cache.set("NIFTY24AUGFUT", 95)
	f.monitor.Check(context.Background())
	require.Len(t, f.exiter.calls, 1)
	assert.Equal(t, domain.ExitTrailing, f.exiter.calls[0])
}

func TestRiskThreeAdverseCandles(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{ExitThreeCandle: true})
	f.open(t, "NIFTY24AUGFUT", domain.OrderSideBuy, 10, 100)

	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	feed := func(minute int, sec int, price float64) {
		f.monitor.OnTick(domain.Tick{
			Symbol:   "NIFTY24AUGFUT",
			LTP:      price,
			Received: base.Add(time.Duration(minute)*time.Minute + time.Duration(sec)*time.Second),
		})
	}

	// Three red minutes in a row, each completed by the next minute's
	// opening tick.
	feed(0, 0, 100)
	feed(0, 30, 99)
	feed(1, 0, 99)
	feed(1, 30, 98)
	feed(2, 0, 98)
	feed(2, 30, 97)

	f.cache.set("NIFTY24AUGFUT", 97)
	f.monitor.Check(context.Background())
	assert.Empty(t, f.exiter.calls, "third candle is still open")

	feed(3, 0, 97)
	f.monitor.Check(context.Background())
	require.Len(t, f.exiter.calls, 1)
	assert.Equal(t, domain.ExitThreeCandles, f.exiter.calls[0])
}

func TestRiskThreeCandlesBrokenRun(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{ExitThreeCandle: true})
	f.open(t, "NIFTY24AUGFUT", domain.OrderSideBuy, 10, 100)

	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	feed := func(minute int, sec int, price float64) {
		f.monitor.OnTick(domain.Tick{
			Symbol:   "NIFTY24AUGFUT",
			LTP:      price,
			Received: base.Add(time.Duration(minute)*time.Minute + time.Duration(sec)*time.Second),
		})
	}

	// Red, green, red, red: the newest-backwards run stops at the green.
	feed(0, 0, 100)
	feed(0, 30, 99)
	feed(1, 0, 99)
	feed(1, 30, 100)
	feed(2, 0, 100)
	feed(2, 30, 99)
	feed(3, 0, 99)
	feed(3, 30, 98)
	feed(4, 0, 98)

	f.cache.set("NIFTY24AUGFUT", 98)
	f.monitor.Check(context.Background())
	assert.Empty(t, f.exiter.calls)
}

func TestRiskExitOnlyOnce(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{StopLossPct: 0.02})
	f.open(t, "NIFTY24AUGFUT", domain.OrderSideBuy, 10, 100)

	f.cache.set("NIFTY24AUGFUT", 95)
	f.monitor.Check(context.Background())
	f.monitor.Check(context.Background())
	assert.Len(t, f.exiter.calls, 1, "flattened position is not exited again")
}

func TestRiskNoQuoteSkipsEvaluation(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{StopLossPct: 0.02})
	f.open(t, "NIFTY24AUGFUT", domain.OrderSideBuy, 10, 100)

	f.monitor.Check(context.Background())
	assert.Empty(t, f.exiter.calls, "no quote means no verdict")
}

func TestRiskPerSymbolOverride(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{StopLossPct: 0.10})
	f.open(t, "NIFTY24AUGFUT", domain.OrderSideBuy, 10, 100)

	f.monitor.SetSymbolLimits("NIFTY24AUGFUT", domain.RiskLimits{StopLossPct: 0.02})
	f.cache.set("NIFTY24AUGFUT", 97)
	f.monitor.Check(context.Background())
	require.Len(t, f.exiter.calls, 1)

	limits := f.monitor.Limits()
	assert.InDelta(t, 0.10, limits.Defaults.StopLossPct, 1e-9)
	assert.InDelta(t, 0.02, limits.PerSymbol["NIFTY24AUGFUT"].StopLossPct, 1e-9)
}

func TestRiskDisabledLimits(t *testing.T) {
	f := newRiskFixture(t, domain.RiskLimits{})
	f.open(t, "NIFTY24AUGFUT", domain.OrderSideBuy, 10, 100)

	f.cache.set("NIFTY24AUGFUT", 50)
	f.monitor.Check(context.Background())
	assert.Empty(t, f.exiter.calls)
}
