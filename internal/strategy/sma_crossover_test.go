package strategy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbay/tradebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tickAt(symbol string, ltp float64) domain.Tick {
	return domain.Tick{Symbol: symbol, LTP: ltp, Received: time.Now()}
}

func TestSMACrossoverInitValidation(t *testing.T) {
	s := NewSMACrossover(testLogger())

	err := s.Init(context.Background(), domain.StrategyConfig{
		Symbols: []string{"NIFTY24AUGFUT"},
		Qty:     75,
		Params:  map[string]float64{"short_period": 50, "long_period": 20},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = s.Init(context.Background(), domain.StrategyConfig{
		Symbols: []string{"NIFTY24AUGFUT"},
		Qty:     75,
		Params:  map[string]float64{"short_period": 0, "long_period": 20},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSMACrossoverSignalsOnTransition(t *testing.T) {
	s := NewSMACrossover(testLogger())
	require.NoError(t, s.Init(context.Background(), domain.StrategyConfig{
		Symbols: []string{"NIFTY24AUGFUT"},
		Qty:     75,
		Params:  map[string]float64{"short_period": 2, "long_period": 4},
	}))

	feed := func(prices ...float64) []domain.TradeSignal {
		var out []domain.TradeSignal
		for _, p := range prices {
			sigs, err := s.OnTick(context.Background(), tickAt("NIFTY24AUGFUT", p))
			require.NoError(t, err)
			out = append(out, sigs...)
		}
		return out
	}

	// Warmup on a flat series, then ramp up. The short average leads the
	// long one, so the first positive cross emits a single BUY.
	sigs := feed(100, 100, 100, 100)
	assert.Empty(t, sigs, "flat warmup produces no signals")

	sigs = feed(101, 102, 103)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.OrderSideBuy, sigs[0].Side)
	assert.Equal(t, int64(75), sigs[0].Qty)
	assert.Contains(t, sigs[0].Reason, "crossed above")

	// Continuing the ramp stays quiet; reversing emits exactly one SELL.
	sigs = feed(104, 105)
	assert.Empty(t, sigs)

	sigs = feed(100, 95, 90, 85)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.OrderSideSell, sigs[0].Side)
	assert.Contains(t, sigs[0].Reason, "crossed below")
}

func TestSMACrossoverIgnoresUnknownSymbol(t *testing.T) {
	s := NewSMACrossover(testLogger())
	require.NoError(t, s.Init(context.Background(), domain.StrategyConfig{
		Symbols: []string{"NIFTY24AUGFUT"},
		Qty:     75,
		Params:  map[string]float64{"short_period": 2, "long_period": 4},
	}))

	for i := 0; i < 20; i++ {
		sigs, err := s.OnTick(context.Background(), tickAt("BANKNIFTY24AUGFUT", 100+float64(i)))
		require.NoError(t, err)
		assert.Empty(t, sigs)
	}
}
