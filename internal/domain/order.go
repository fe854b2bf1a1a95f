package domain

import "time"

// Book separates the paper ledger from live broker records.
type Book string

const (
	BookPaper Book = "paper"
	BookLive  Book = "live"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the exit side for a position held on this side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// IntentSource records which subsystem originated an order intent.
type IntentSource string

const (
	SourceStrategy IntentSource = "strategy"
	SourceRisk     IntentSource = "risk"
	SourceSchedule IntentSource = "schedule"
	SourceManual   IntentSource = "manual"
)

// ExitReason tags forced exits for the ledger and notifications.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "SL"
	ExitTakeProfit   ExitReason = "TP"
	ExitTrailing     ExitReason = "TRAIL"
	ExitThreeCandles ExitReason = "THREE_CANDLES"
	ExitEOD          ExitReason = "EOD"
	ExitManual       ExitReason = "MANUAL"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderIntent is a request to trade, before routing. The IdempotencyKey is
// fixed when the intent is created and reused across retries.
type OrderIntent struct {
	ID             string
	Symbol         string
	Side           OrderSide
	Qty            int64
	Source         IntentSource
	Strategy       string
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the intent's validity window has passed.
func (i OrderIntent) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Order is a routed order record, paper or live.
type Order struct {
	ID             string
	BrokerOrderID  string
	Book           Book
	Symbol         string
	Side           OrderSide
	Qty            int64
	FillPrice      float64
	Status         OrderStatus
	Source         IntentSource
	Strategy       string
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
	FilledAt       *time.Time
	CancelledAt    *time.Time
}

// Fill is the position-affecting event produced when an order fills.
type Fill struct {
	OrderID  string
	Book     Book
	Symbol   string
	Side     OrderSide
	Qty      int64
	Price    float64
	Strategy string
	At       time.Time
}

// SignedQty returns the position delta: positive for buys, negative for sells.
func (f Fill) SignedQty() int64 {
	if f.Side == OrderSideBuy {
		return f.Qty
	}
	return -f.Qty
}
