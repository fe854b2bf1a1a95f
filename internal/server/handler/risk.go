package handler

import (
	"encoding/json"
	"net/http"

	"github.com/quantbay/tradebot/internal/domain"
)

// RiskMonitor is what the risk handler needs from the monitor.
type RiskMonitor interface {
	Limits() domain.RiskConfig
	SetDefaults(l domain.RiskLimits)
	SetSymbolLimits(symbol string, l domain.RiskLimits)
}

// RiskHandler serves the runtime risk limit endpoints.
type RiskHandler struct {
	monitor RiskMonitor
}

func NewRiskHandler(monitor RiskMonitor) *RiskHandler {
	return &RiskHandler{monitor: monitor}
}

// GetLimits returns the limits currently in effect.
// GET /api/risk
func (h *RiskHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Limits())
}

// UpdateDefaults replaces the global limits.
// PUT /api/risk
func (h *RiskHandler) UpdateDefaults(w http.ResponseWriter, r *http.Request) {
	var limits domain.RiskLimits
	if err := json.NewDecoder(r.Body).Decode(&limits); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if limits.StopLossPct < 0 || limits.TakeProfitPct < 0 || limits.TrailActivation < 0 || limits.TrailDistance < 0 {
		writeError(w, http.StatusBadRequest, "limits must be non-negative")
		return
	}

	h.monitor.SetDefaults(limits)
	writeJSON(w, http.StatusOK, h.monitor.Limits())
}

// UpdateSymbol installs a per-symbol override.
// PUT /api/risk/{symbol}
func (h *RiskHandler) UpdateSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	var limits domain.RiskLimits
	if err := json.NewDecoder(r.Body).Decode(&limits); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if limits.StopLossPct < 0 || limits.TakeProfitPct < 0 || limits.TrailActivation < 0 || limits.TrailDistance < 0 {
		writeError(w, http.StatusBadRequest, "limits must be non-negative")
		return
	}

	h.monitor.SetSymbolLimits(symbol, limits)
	writeJSON(w, http.StatusOK, h.monitor.Limits())
}
