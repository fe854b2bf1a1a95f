package domain

import "time"

// Position is an open holding in one book. Qty is signed: positive long,
// negative short. AvgPrice is the weighted-average entry cost and is only
// changed by fills that increase the absolute position.
type Position struct {
	Book     Book      `json:"book"`
	Symbol   string    `json:"symbol"`
	Qty      int64     `json:"qty"`
	AvgPrice float64   `json:"avg_price"`
	Strategy string    `json:"strategy,omitempty"`
	OpenedAt time.Time `json:"opened_at"`
}

// Long reports whether the position is long.
func (p Position) Long() bool { return p.Qty > 0 }

// UnrealizedAt returns the mark-to-market PnL at the given price.
func (p Position) UnrealizedAt(ltp float64) float64 {
	return (ltp - p.AvgPrice) * float64(p.Qty)
}

// SymbolPnL is the per-symbol line of a PnL report.
type SymbolPnL struct {
	Symbol     string  `json:"symbol"`
	Qty        int64   `json:"qty"`
	AvgPrice   float64 `json:"avg_price"`
	LTP        float64 `json:"ltp"`
	Unrealized float64 `json:"unrealized"`
	StaleQuote bool    `json:"stale_quote,omitempty"`
}

// BookPnL aggregates one book. Equity is only meaningful for the paper book,
// where a cash account exists.
type BookPnL struct {
	Realized   float64     `json:"realized"`
	Unrealized float64     `json:"unrealized"`
	Cash       float64     `json:"cash,omitempty"`
	Equity     float64     `json:"equity,omitempty"`
	Symbols    []SymbolPnL `json:"symbols"`
}

// PnLSummary is the full report returned by the PnL endpoint.
type PnLSummary struct {
	Paper BookPnL   `json:"paper"`
	Live  BookPnL   `json:"live"`
	AsOf  time.Time `json:"as_of"`
}
