package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quantbay/tradebot/internal/domain"
)

// OrderRouter is what the order handler needs from the router.
type OrderRouter interface {
	Submit(ctx context.Context, intent domain.OrderIntent) (*domain.Order, error)
	Cancel(ctx context.Context, orderID string) error
	Modify(ctx context.Context, orderID string, newQty int64) error
}

// OrderHandler serves the order ledger endpoints.
type OrderHandler struct {
	store  domain.OrderStore
	router OrderRouter
	logger *slog.Logger
}

func NewOrderHandler(store domain.OrderStore, router OrderRouter, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{store: store, router: router, logger: logger}
}

// ListOrders returns the order ledger, newest first.
// GET /api/orders?book=paper&symbol=NSE:TCS&status=filled&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	book, ok := parseBook(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "book must be paper or live")
		return
	}

	q := r.URL.Query()
	filter := domain.OrderFilter{
		Book:     book,
		Symbol:   q.Get("symbol"),
		Status:   domain.OrderStatus(q.Get("status")),
		Source:   domain.IntentSource(q.Get("source")),
		ListOpts: parseListOpts(r),
	}

	orders, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// submitOrderRequest is the JSON body for SubmitOrder.
type submitOrderRequest struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Qty    int64  `json:"qty"`
	Reason string `json:"reason"`
}

// SubmitOrder routes a manual order through the router.
// POST /api/orders
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var side domain.OrderSide
	switch req.Side {
	case "buy":
		side = domain.OrderSideBuy
	case "sell":
		side = domain.OrderSideSell
	default:
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}

	intent := domain.OrderIntent{
		ID:             uuid.NewString(),
		Symbol:         req.Symbol,
		Side:           side,
		Qty:            req.Qty,
		Source:         domain.SourceManual,
		Reason:         reason,
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      time.Now(),
	}

	order, err := h.router.Submit(r.Context(), intent)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrMarketClosed),
			errors.Is(err, domain.ErrNoQuote),
			errors.Is(err, domain.ErrInsufficientFunds):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: manual order failed",
				slog.String("symbol", req.Symbol),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to submit order")
		}
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// GetOrder returns a single order.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	order, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// modifyOrderRequest is the JSON body for ModifyOrder.
type modifyOrderRequest struct {
	Qty int64 `json:"qty"`
}

// ModifyOrder changes the quantity of a pending order.
// PUT /api/orders/{id}
func (h *OrderHandler) ModifyOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req modifyOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Qty <= 0 {
		writeError(w, http.StatusBadRequest, "qty must be positive")
		return
	}

	if err := h.router.Modify(r.Context(), id, req.Qty); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: modify order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to modify order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "modified",
		"order_id": id,
		"qty":      req.Qty,
	})
}

// CancelOrder cancels a pending order.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	if err := h.router.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": id,
	})
}
