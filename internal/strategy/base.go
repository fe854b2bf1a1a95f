package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/quantbay/tradebot/internal/domain"
)

// newSignal builds a TradeSignal with a fresh ID. ExpiresAt is left zero;
// the engine stamps it with the configured TTL on emission.
func newSignal(strat, symbol string, side domain.OrderSide, qty int64, price float64, reason string) domain.TradeSignal {
	return domain.TradeSignal{
		ID:        uuid.NewString(),
		Strategy:  strat,
		Symbol:    symbol,
		Side:      side,
		Qty:       qty,
		Price:     price,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
}

// crosser detects sign changes of a difference series between consecutive
// evaluations. A zero difference counts as below.
type crosser struct {
	prevSign int // -1, +1, or 0 before the first observation
}

// Observe feeds the next difference and returns the crossing direction:
// +1 when the series moves above zero, -1 when it moves to or below zero,
// 0 when no crossing occurred. The first observation never crosses.
func (c *crosser) Observe(diff float64) int {
	sign := -1
	if diff > 0 {
		sign = 1
	}
	if c.prevSign == 0 {
		c.prevSign = sign
		return 0
	}
	if sign != c.prevSign {
		c.prevSign = sign
		return sign
	}
	return 0
}

// sideLatch suppresses repeat signals on the same side. Latching BUY blocks
// further BUYs until a SELL fires (or Reset clears the latch).
type sideLatch struct {
	last domain.OrderSide
}

// Try reports whether a signal on side may fire, latching it if so.
func (l *sideLatch) Try(side domain.OrderSide) bool {
	if l.last == side {
		return false
	}
	l.last = side
	return true
}

// Reset clears the latch. Band strategies call this when the measure
// re-enters its neutral zone.
func (l *sideLatch) Reset() { l.last = "" }
