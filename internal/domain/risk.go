package domain

// RiskLimits are the exit rules applied to one position. Zero disables a rule.
type RiskLimits struct {
	StopLossPct     float64 `json:"sl_pct"`
	TakeProfitPct   float64 `json:"tp_pct"`
	TrailActivation float64 `json:"trail_activation_points"`
	TrailDistance   float64 `json:"trail_points_after_activation"`
	ExitThreeCandle bool    `json:"exit_three_candles"`
}

// Enabled reports whether any rule is active.
func (r RiskLimits) Enabled() bool {
	return r.StopLossPct > 0 || r.TakeProfitPct > 0 ||
		(r.TrailActivation > 0 && r.TrailDistance > 0) || r.ExitThreeCandle
}

// RiskConfig holds the global defaults plus per-symbol overrides.
type RiskConfig struct {
	Defaults  RiskLimits            `json:"defaults"`
	PerSymbol map[string]RiskLimits `json:"per_symbol,omitempty"`
}

// For returns the limits in effect for a symbol.
func (c RiskConfig) For(symbol string) RiskLimits {
	if o, ok := c.PerSymbol[symbol]; ok {
		return o
	}
	return c.Defaults
}
