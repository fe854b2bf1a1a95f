package domain

import (
	"context"
	"sort"
	"time"
)

// QuoteProvider streams ticks and answers on-demand price lookups.
type QuoteProvider interface {
	// Subscribe registers symbols for streaming. Safe to call before the
	// stream is connected; pending subscriptions flush on connect.
	Subscribe(symbols []string) error
	Unsubscribe(symbols []string) error

	// Run drives the stream until ctx is done, delivering ticks to onTick.
	Run(ctx context.Context, onTick func(Tick)) error

	// LTP fetches the last traded price without the stream.
	LTP(ctx context.Context, symbol string) (float64, error)

	// Depth fetches best bid/ask without the stream.
	Depth(ctx context.Context, symbol string) (bid, ask float64, err error)
}

// BrokerOrderRequest is the live order placement payload.
type BrokerOrderRequest struct {
	Symbol         string
	Side           OrderSide
	Qty            int64
	IdempotencyKey string
	Tag            string
}

// Broker places and manages live orders.
type Broker interface {
	PlaceOrder(ctx context.Context, req BrokerOrderRequest) (brokerOrderID string, err error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	ModifyOrder(ctx context.Context, brokerOrderID string, qty int64) error
	Orders(ctx context.Context) ([]Order, error)
}

// OptionStrike is one row of an options chain.
type OptionStrike struct {
	Strike   float64 `json:"strike"`
	CESymbol string  `json:"ce_symbol"`
	PESymbol string  `json:"pe_symbol"`
}

// OptionChain is the resolved chain for one underlying and expiry.
type OptionChain struct {
	Underlying string         `json:"underlying"`
	Expiry     string         `json:"expiry"`
	LotSize    int64          `json:"lot_size"`
	Strikes    []OptionStrike `json:"strikes"` // ascending by strike
	FetchedAt  time.Time      `json:"fetched_at"`
}

// OptionsChainResolver fetches chains from the broker's instrument dump.
type OptionsChainResolver interface {
	Chain(ctx context.Context, underlying, expiry string) (OptionChain, error)
}

// AtStrike returns the strike row at the given ATM offset. The center is the
// middle element of the ascending strike list (or the strike nearest to
// `around` when around > 0). Candidates are ordered by distance from the
// center with ascending strike breaking ties; offset indexes that order,
// clamped to range.
func (c OptionChain) AtStrike(around float64, offset int) (OptionStrike, error) {
	if len(c.Strikes) == 0 {
		return OptionStrike{}, ErrNotFound
	}
	strikes := make([]OptionStrike, len(c.Strikes))
	copy(strikes, c.Strikes)
	sort.Slice(strikes, func(i, j int) bool { return strikes[i].Strike < strikes[j].Strike })

	center := strikes[len(strikes)/2].Strike
	if around > 0 {
		center = around
	}
	sort.SliceStable(strikes, func(i, j int) bool {
		di := abs(strikes[i].Strike - center)
		dj := abs(strikes[j].Strike - center)
		if di != dj {
			return di < dj
		}
		return strikes[i].Strike < strikes[j].Strike
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(strikes) {
		offset = len(strikes) - 1
	}
	return strikes[offset], nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// LotSize returns the contract lot size for an index underlying.
func LotSize(underlying string) int64 {
	switch underlying {
	case "NIFTY":
		return 75
	case "BANKNIFTY":
		return 35
	case "SENSEX":
		return 20
	case "FINNIFTY":
		return 40
	default:
		return 1
	}
}
