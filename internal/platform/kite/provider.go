package kite

import (
	"context"

	"github.com/quantbay/tradebot/internal/domain"
)

// Provider combines the WebSocket feed with the REST client to satisfy
// the quote provider contract: streaming ticks plus on-demand lookups.
type Provider struct {
	*Feed
	rest *Client
}

func NewProvider(feed *Feed, rest *Client) *Provider {
	return &Provider{Feed: feed, rest: rest}
}

func (p *Provider) LTP(ctx context.Context, symbol string) (float64, error) {
	return p.rest.LTP(ctx, symbol)
}

func (p *Provider) Depth(ctx context.Context, symbol string) (bid, ask float64, err error) {
	return p.rest.Depth(ctx, symbol)
}

var _ domain.QuoteProvider = (*Provider)(nil)
