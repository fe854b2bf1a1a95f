package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantbay/tradebot/internal/domain"
)

// StrategyEngine is what the strategy handler needs from the engine.
type StrategyEngine interface {
	Start(ctx context.Context, cfg domain.StrategyConfig) error
	Stop() error
	Status() domain.StrategyStatus
}

// StrategyHandler serves the strategy lifecycle endpoints.
type StrategyHandler struct {
	engine StrategyEngine
	logger *slog.Logger
}

func NewStrategyHandler(engine StrategyEngine, logger *slog.Logger) *StrategyHandler {
	return &StrategyHandler{engine: engine, logger: logger}
}

// Start activates a strategy, replacing any currently active one.
// POST /api/strategy/start
func (h *StrategyHandler) Start(w http.ResponseWriter, r *http.Request) {
	var cfg domain.StrategyConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.engine.Start(r.Context(), cfg); err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: strategy start failed",
			slog.String("type", string(cfg.Type)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to start strategy")
		return
	}

	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Stop deactivates the running strategy.
// POST /api/strategy/stop
func (h *StrategyHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Stop(); err != nil {
		if errors.Is(err, domain.ErrNoActiveStrategy) {
			writeError(w, http.StatusConflict, "no active strategy")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to stop strategy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// Status returns the active strategy and its recent signals.
// GET /api/strategy/status
func (h *StrategyHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Types lists the available strategy types.
// GET /api/strategy/types
func (h *StrategyHandler) Types(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": domain.StrategyTypes()})
}
