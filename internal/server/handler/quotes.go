package handler

import (
	"net/http"
	"sort"
	"strings"

	"github.com/quantbay/tradebot/internal/domain"
)

// QuoteSource is the slice of the feed ingestor the quotes handler reads.
type QuoteSource interface {
	Latest(symbol string) (domain.Quote, bool)
	All() []domain.Quote
}

// QuotesHandler exposes the in-memory quote cache.
type QuotesHandler struct {
	source QuoteSource
}

func NewQuotesHandler(source QuoteSource) *QuotesHandler {
	return &QuotesHandler{source: source}
}

// ListQuotes returns the latest known quotes, optionally filtered to
// ?symbols=NSE:NIFTY,NSE:BANKNIFTY.
// GET /api/quotes
func (h *QuotesHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("symbols"))
	if raw == "" {
		quotes := h.source.All()
		sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })
		writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes, "count": len(quotes)})
		return
	}

	var quotes []domain.Quote
	var missing []string
	for _, symbol := range strings.Split(raw, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		q, ok := h.source.Latest(symbol)
		if !ok {
			missing = append(missing, symbol)
			continue
		}
		quotes = append(quotes, q)
	}

	resp := map[string]any{"quotes": quotes, "count": len(quotes)}
	if len(missing) > 0 {
		resp["missing"] = missing
	}
	writeJSON(w, http.StatusOK, resp)
}
