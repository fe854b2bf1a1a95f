package domain

import (
	"context"
	"time"
)

// QuoteCache is the latest-quote lookup used by fills, risk and the API.
type QuoteCache interface {
	Set(ctx context.Context, q Quote) error
	Get(ctx context.Context, symbol string) (Quote, error)
	Snapshot(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// EventBus fans engine events out to the viewer surface and any
// cross-process consumers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, pattern string) (<-chan BusMessage, error)
	Close() error
}

// BusMessage is one delivery from an EventBus subscription.
type BusMessage struct {
	Channel string
	Payload []byte
}

// RateLimiter gates calls to the live broker.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
