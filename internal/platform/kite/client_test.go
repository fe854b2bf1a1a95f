package kite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbay/tradebot/internal/domain"
)

func TestSplitSymbol(t *testing.T) {
	ex, sym := splitSymbol("NFO:NIFTY24AUGFUT")
	assert.Equal(t, "NFO", ex)
	assert.Equal(t, "NIFTY24AUGFUT", sym)

	ex, sym = splitSymbol("RELIANCE")
	assert.Equal(t, "NSE", ex, "bare symbols default to NSE")
	assert.Equal(t, "RELIANCE", sym)
}

func TestOrderTag(t *testing.T) {
	tag := orderTag(domain.BrokerOrderRequest{IdempotencyKey: "0b5fe2a1-9c2d-4f6e-8a33-77d1e2f3a4b5"})
	assert.Equal(t, "0b5fe2a19c2d4f6e8a33", tag)
	assert.Len(t, tag, 20)

	assert.Equal(t, "short", orderTag(domain.BrokerOrderRequest{IdempotencyKey: "short"}))
}

func TestMapOrderStatus(t *testing.T) {
	assert.Equal(t, domain.OrderStatusFilled, mapOrderStatus("COMPLETE"))
	assert.Equal(t, domain.OrderStatusRejected, mapOrderStatus("rejected"))
	assert.Equal(t, domain.OrderStatusCancelled, mapOrderStatus("CANCELLED"))
	assert.Equal(t, domain.OrderStatusNew, mapOrderStatus("OPEN"))
	assert.Equal(t, domain.OrderStatusNew, mapOrderStatus("TRIGGER PENDING"))
}

func TestClientLTP(t *testing.T) {
	var gotPath, gotAuth, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("X-Kite-Version")
		w.Write([]byte(`{"status":"success","data":{"NFO:NIFTY24AUGFUT":{"last_price":25012.5}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "token", 5*time.Second)
	ltp, err := c.LTP(context.Background(), "NFO:NIFTY24AUGFUT")
	require.NoError(t, err)
	assert.InDelta(t, 25012.5, ltp, 1e-9)
	assert.Equal(t, "/quote/ltp", gotPath)
	assert.Equal(t, "token key:token", gotAuth)
	assert.Equal(t, "3", gotVersion)
}

func TestClientLTPMissingSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "token", 5*time.Second)
	_, err := c.LTP(context.Background(), "NFO:NIFTY24AUGFUT")
	assert.ErrorIs(t, err, domain.ErrNoQuote)
}

func TestClientDepth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"NFO:NIFTY24AUGFUT":{"depth":{"buy":[{"price":100.5},{"price":100.0}],"sell":[{"price":101.0}]}}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "token", 5*time.Second)
	bid, ask, err := c.Depth(context.Background(), "NFO:NIFTY24AUGFUT")
	require.NoError(t, err)
	assert.InDelta(t, 100.5, bid, 1e-9, "best bid is the first buy level")
	assert.InDelta(t, 101.0, ask, 1e-9)
}

func TestClientPlaceOrder(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Write([]byte(`{"status":"success","data":{"order_id":"240828000123"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "token", 5*time.Second)
	id, err := c.PlaceOrder(context.Background(), domain.BrokerOrderRequest{
		Symbol:         "NFO:NIFTY24AUGFUT",
		Side:           domain.OrderSideBuy,
		Qty:            75,
		IdempotencyKey: "abc-def",
	})
	require.NoError(t, err)
	assert.Equal(t, "240828000123", id)

	assert.Equal(t, "NFO", form["exchange"])
	assert.Equal(t, "NIFTY24AUGFUT", form["tradingsymbol"])
	assert.Equal(t, "BUY", form["transaction_type"])
	assert.Equal(t, "75", form["quantity"])
	assert.Equal(t, "MARKET", form["order_type"])
	assert.Equal(t, "MIS", form["product"])
	assert.Equal(t, "abcdef", form["tag"])
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","message":"Insufficient margin"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "token", 5*time.Second)
	_, err := c.PlaceOrder(context.Background(), domain.BrokerOrderRequest{Symbol: "X", Side: domain.OrderSideBuy, Qty: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Insufficient margin")
}

func TestClientRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "token", 5*time.Second)
	_, err := c.LTP(context.Background(), "X")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestClientUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "token", 5*time.Second)
	_, err := c.LTP(context.Background(), "X")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestClientOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":[
			{"order_id":"1","exchange":"NFO","tradingsymbol":"NIFTY24AUGFUT","transaction_type":"SELL","quantity":75,"average_price":25000,"status":"COMPLETE","tag":"abc"},
			{"order_id":"2","exchange":"NSE","tradingsymbol":"RELIANCE","transaction_type":"BUY","quantity":10,"average_price":0,"status":"OPEN","tag":""}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "token", 5*time.Second)
	orders, err := c.Orders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "NFO:NIFTY24AUGFUT", orders[0].Symbol)
	assert.Equal(t, domain.OrderSideSell, orders[0].Side)
	assert.Equal(t, domain.OrderStatusFilled, orders[0].Status)
	assert.Equal(t, domain.BookLive, orders[0].Book)

	assert.Equal(t, domain.OrderSideBuy, orders[1].Side)
	assert.Equal(t, domain.OrderStatusNew, orders[1].Status)
}
