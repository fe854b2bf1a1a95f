package handler

import (
	"context"
	"net/http"

	"github.com/quantbay/tradebot/internal/domain"
)

// PositionBook is what the position handler needs from the in-memory book.
type PositionBook interface {
	Positions(book domain.Book) []domain.Position
	AllPositions() []domain.Position
	PnL(ctx context.Context) domain.PnLSummary
}

// PositionHandler serves positions and PnL.
type PositionHandler struct {
	book PositionBook
}

func NewPositionHandler(book PositionBook) *PositionHandler {
	return &PositionHandler{book: book}
}

// ListPositions returns open positions, optionally for one book.
// GET /api/positions?book=paper
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var positions []domain.Position
	if r.URL.Query().Get("book") == "" {
		positions = h.book.AllPositions()
	} else {
		book, ok := parseBook(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "book must be paper or live")
			return
		}
		positions = h.book.Positions(book)
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// GetPnL returns the realized and unrealized PnL summary for both books.
// GET /api/pnl
func (h *PositionHandler) GetPnL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.book.PnL(r.Context()))
}
