package kite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTick(t *testing.T) {
	raw := []byte(`{
		"symbol": "NFO:NIFTY24AUGFUT",
		"last_price": 25012.5,
		"buy_price": 25012.0,
		"sell_price": 25013.0,
		"volume": 123456,
		"ohlc": {"open": 24900, "high": 25100, "low": 24850, "close": 24950},
		"exchange_timestamp": 1756350000
	}`)

	tick, ok := parseTick(raw)
	require.True(t, ok)
	assert.Equal(t, "NFO:NIFTY24AUGFUT", tick.Symbol)
	assert.InDelta(t, 25012.5, tick.LTP, 1e-9)
	assert.InDelta(t, 25012.0, tick.BestBid, 1e-9)
	assert.InDelta(t, 25013.0, tick.BestAsk, 1e-9)
	assert.Equal(t, int64(123456), tick.Volume)
	assert.InDelta(t, 24900.0, tick.OHLC.Open, 1e-9)
	assert.Equal(t, time.Unix(1756350000, 0), tick.Exchange)
	assert.False(t, tick.Received.IsZero())
}

func TestParseTickRejectsEmptySymbol(t *testing.T) {
	_, ok := parseTick([]byte(`{"last_price": 100}`))
	assert.False(t, ok)

	_, ok = parseTick([]byte(`not json`))
	assert.False(t, ok)
}

func TestParseTickNoExchangeTimestamp(t *testing.T) {
	tick, ok := parseTick([]byte(`{"symbol": "NSE:RELIANCE", "last_price": 2900}`))
	require.True(t, ok)
	assert.True(t, tick.Exchange.IsZero())
}

func TestFeedTracksSubscriptionsOffline(t *testing.T) {
	f := NewFeed("wss://example.invalid/feed", "key", "token", testLogger())

	require.NoError(t, f.Subscribe([]string{"NFO:NIFTY24AUGFUT", "NSE:RELIANCE"}))
	require.NoError(t, f.Subscribe([]string{"NFO:NIFTY24AUGFUT"}), "repeat subscribe is a no-op")
	assert.False(t, f.Connected())

	f.mu.Lock()
	assert.Len(t, f.subs, 2, "pending subscriptions are kept for the next connect")
	f.mu.Unlock()

	require.NoError(t, f.Unsubscribe([]string{"NSE:RELIANCE"}))
	f.mu.Lock()
	assert.Len(t, f.subs, 1)
	f.mu.Unlock()
}
