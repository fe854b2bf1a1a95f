package domain

import "time"

// OHLC is the running candle snapshot carried on a tick.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Tick is a single market data update for one instrument.
type Tick struct {
	Symbol   string    `json:"symbol"`
	LTP      float64   `json:"ltp"`
	BestBid  float64   `json:"best_bid"`
	BestAsk  float64   `json:"best_ask"`
	Volume   int64     `json:"volume"`
	OHLC     OHLC      `json:"ohlc"`
	Exchange time.Time `json:"exchange_ts"`
	Received time.Time `json:"received_ts"`
}

// Mid returns the midpoint of best bid/ask, or 0 when no depth is present.
func (t Tick) Mid() float64 {
	if t.BestBid <= 0 || t.BestAsk <= 0 {
		return 0
	}
	return (t.BestBid + t.BestAsk) / 2
}

// Quote is the cached view of the latest tick for one instrument.
type Quote struct {
	Symbol     string    `json:"symbol"`
	LTP        float64   `json:"ltp"`
	BestBid    float64   `json:"best_bid"`
	BestAsk    float64   `json:"best_ask"`
	Volume     int64     `json:"volume"`
	OHLC       OHLC      `json:"ohlc"`
	ReceivedAt time.Time `json:"received_at"`
}

// Stale reports whether the quote is older than maxAge relative to now.
func (q Quote) Stale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(q.ReceivedAt) > maxAge
}

// QuoteFromTick builds the cache entry for a tick.
func QuoteFromTick(t Tick) Quote {
	return Quote{
		Symbol:     t.Symbol,
		LTP:        t.LTP,
		BestBid:    t.BestBid,
		BestAsk:    t.BestAsk,
		Volume:     t.Volume,
		OHLC:       t.OHLC,
		ReceivedAt: t.Received,
	}
}

// Candle is a completed fixed-interval bar built from ticks.
type Candle struct {
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Start  time.Time `json:"start"`
}
