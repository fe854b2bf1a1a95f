package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/quantbay/tradebot/internal/domain"
)

// OptionsService is what the options handler needs from the service.
type OptionsService interface {
	Chain(ctx context.Context, underlying, expiry string, around float64, count int) (domain.OptionChain, error)
	PlaceATM(ctx context.Context, underlying, expiry string, side domain.OrderSide, lots int64, offset int) ([]*domain.Order, error)
}

// OptionsHandler serves option chain lookups and ATM placements.
type OptionsHandler struct {
	options OptionsService
	logger  *slog.Logger
}

func NewOptionsHandler(options OptionsService, logger *slog.Logger) *OptionsHandler {
	return &OptionsHandler{options: options, logger: logger}
}

// GetChain returns the chain for an underlying and expiry, optionally
// narrowed to the strikes nearest a price.
// GET /api/options/chain?underlying=NIFTY&expiry=2026-09-03&around=24800&count=10
func (h *OptionsHandler) GetChain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	underlying := q.Get("underlying")
	expiry := q.Get("expiry")
	if underlying == "" || expiry == "" {
		writeError(w, http.StatusBadRequest, "underlying and expiry query parameters required")
		return
	}

	around, _ := strconv.ParseFloat(q.Get("around"), 64)
	count, _ := strconv.Atoi(q.Get("count"))

	chain, err := h.options.Chain(r.Context(), underlying, expiry, around, count)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no chain for "+underlying+" "+expiry)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: option chain failed",
			slog.String("underlying", underlying),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to resolve chain")
		return
	}

	writeJSON(w, http.StatusOK, chain)
}

// atmRequest is the JSON body for PlaceATM.
type atmRequest struct {
	Underlying string `json:"underlying"`
	Expiry     string `json:"expiry"`
	Side       string `json:"side"`
	Lots       int64  `json:"lots"`
	Offset     int    `json:"offset"`
}

// PlaceATM places a CE and PE leg around the money.
// POST /api/options/atm
func (h *OptionsHandler) PlaceATM(w http.ResponseWriter, r *http.Request) {
	var req atmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Underlying == "" || req.Expiry == "" {
		writeError(w, http.StatusBadRequest, "underlying and expiry are required")
		return
	}

	side := domain.OrderSideBuy
	switch req.Side {
	case "", "buy":
	case "sell":
		side = domain.OrderSideSell
	default:
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	if req.Lots <= 0 {
		req.Lots = 1
	}

	orders, err := h.options.PlaceATM(r.Context(), req.Underlying, req.Expiry, side, req.Lots, req.Offset)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, domain.ErrNoQuote) || errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: atm placement failed",
			slog.String("underlying", req.Underlying),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place atm legs")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"orders": orders})
}
