package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantbay/tradebot/internal/domain"
)

// TradeRouter is what the trade handler needs from the order router.
type TradeRouter interface {
	SquareOff(ctx context.Context, book domain.Book, symbol string, reason domain.ExitReason, source domain.IntentSource) (*domain.Order, error)
	SquareOffAll(ctx context.Context, book domain.Book, reason domain.ExitReason, source domain.IntentSource) error
	ResetPaper(ctx context.Context) error
}

// ScheduleSource exposes the daily schedule for reading and whole-object
// replacement.
type ScheduleSource interface {
	Schedule() domain.Schedule
	SetSchedule(sched domain.Schedule) error
}

// TradeHandler serves manual square-off, paper reset, and schedule.
type TradeHandler struct {
	router   TradeRouter
	schedule ScheduleSource
	logger   *slog.Logger
}

func NewTradeHandler(router TradeRouter, schedule ScheduleSource, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{router: router, schedule: schedule, logger: logger}
}

// SquareOff closes the open position for one symbol.
// POST /api/squareoff/{symbol}?book=paper
func (h *TradeHandler) SquareOff(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}
	book, ok := parseBook(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "book must be paper or live")
		return
	}

	order, err := h.router.SquareOff(r.Context(), book, symbol, domain.ExitManual, domain.SourceManual)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no open position for "+symbol)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: square off failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to square off")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// SquareOffAll closes every open position in the book.
// POST /api/squareoff-all?book=paper
func (h *TradeHandler) SquareOffAll(w http.ResponseWriter, r *http.Request) {
	book, ok := parseBook(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "book must be paper or live")
		return
	}

	if err := h.router.SquareOffAll(r.Context(), book, domain.ExitManual, domain.SourceManual); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: square off all failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "squared off"})
}

// ResetPaper wipes the paper ledger back to seed cash.
// POST /api/paper/reset
func (h *TradeHandler) ResetPaper(w http.ResponseWriter, r *http.Request) {
	if err := h.router.ResetPaper(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: paper reset failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to reset paper ledger")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// GetSchedule returns the daily trading schedule.
// GET /api/schedule
func (h *TradeHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.schedule.Schedule())
}

// UpdateSchedule replaces the daily trading schedule as a whole.
// PUT /api/schedule
func (h *TradeHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var sched domain.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.schedule.SetSchedule(sched); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: schedule update failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update schedule")
		return
	}

	writeJSON(w, http.StatusOK, h.schedule.Schedule())
}
