package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantbay/tradebot/internal/domain"
)

func TestCrosser(t *testing.T) {
	var c crosser

	assert.Equal(t, 0, c.Observe(1.5), "first observation never crosses")
	assert.Equal(t, 0, c.Observe(2.0), "same side is quiet")
	assert.Equal(t, -1, c.Observe(-0.5))
	assert.Equal(t, 0, c.Observe(-3.0))
	assert.Equal(t, 1, c.Observe(0.1))
}

func TestCrosserZeroCountsAsBelow(t *testing.T) {
	var c crosser

	c.Observe(1.0)
	assert.Equal(t, -1, c.Observe(0.0))
	assert.Equal(t, 0, c.Observe(0.0))
	assert.Equal(t, 1, c.Observe(0.5))
}

func TestSideLatch(t *testing.T) {
	var l sideLatch

	assert.True(t, l.Try(domain.OrderSideBuy))
	assert.False(t, l.Try(domain.OrderSideBuy), "repeat side is suppressed")
	assert.True(t, l.Try(domain.OrderSideSell))
	assert.True(t, l.Try(domain.OrderSideBuy), "opposite side releases the latch")

	l.Reset()
	assert.True(t, l.Try(domain.OrderSideBuy), "reset allows the same side again")
}

func TestNewSignalFields(t *testing.T) {
	sig := newSignal("sma_crossover", "NIFTY24AUGFUT", domain.OrderSideBuy, 75, 101.5, "cross up")

	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, "sma_crossover", sig.Strategy)
	assert.Equal(t, domain.OrderSideBuy, sig.Side)
	assert.Equal(t, int64(75), sig.Qty)
	assert.True(t, sig.ExpiresAt.IsZero(), "TTL is stamped by the engine")
}
