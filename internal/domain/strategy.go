package domain

import "time"

// StrategyType enumerates the closed set of runnable strategies.
type StrategyType string

const (
	StrategySMACrossover      StrategyType = "sma_crossover"
	StrategyEMACrossover      StrategyType = "ema_crossover"
	StrategyRSI               StrategyType = "rsi"
	StrategyMACD              StrategyType = "macd"
	StrategyBollinger         StrategyType = "bollinger"
	StrategySupportResistance StrategyType = "support_resistance"
	StrategyOptionsStraddle   StrategyType = "options_straddle"
	StrategyOptionsStrangle   StrategyType = "options_strangle"
	StrategyOptionsTouchSMA   StrategyType = "options_touch_sma"
)

// StrategyTypes lists every runnable strategy type.
func StrategyTypes() []StrategyType {
	return []StrategyType{
		StrategySMACrossover,
		StrategyEMACrossover,
		StrategyRSI,
		StrategyMACD,
		StrategyBollinger,
		StrategySupportResistance,
		StrategyOptionsStraddle,
		StrategyOptionsStrangle,
		StrategyOptionsTouchSMA,
	}
}

// ValidStrategyType reports whether t names a known strategy.
func ValidStrategyType(t StrategyType) bool {
	for _, s := range StrategyTypes() {
		if s == t {
			return true
		}
	}
	return false
}

// StrategyConfig is the runtime configuration of the active strategy.
type StrategyConfig struct {
	Type    StrategyType       `json:"type"`
	Symbols []string           `json:"symbols"`
	Qty     int64              `json:"qty"`
	Expiry  string             `json:"expiry,omitempty"` // options strategies only
	Params  map[string]float64 `json:"params,omitempty"`
}

// TradeSignal is emitted by a strategy to request order routing.
type TradeSignal struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Symbol    string    `json:"symbol"`
	Side      OrderSide `json:"side"`
	Qty       int64     `json:"qty"`
	Price     float64   `json:"price"` // last price at emission, informational
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StrategyStatus is the engine's report of the active strategy.
type StrategyStatus struct {
	Active      bool           `json:"active"`
	Config      StrategyConfig `json:"config,omitempty"`
	StartedAt   time.Time      `json:"started_at,omitempty"`
	SignalCount int64          `json:"signal_count"`
	Dropped     int64          `json:"dropped_signals"`
	Recent      []TradeSignal  `json:"recent_signals"`
}
