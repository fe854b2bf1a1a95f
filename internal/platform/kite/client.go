// Package kite is the broker adapter: a REST client for quotes and
// order management, a WebSocket tick feed, and an options chain
// resolver built from the instrument dump.
package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
)

// Client is the REST client for the broker's trading API.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *http.Client
}

func NewClient(baseURL, apiKey, accessToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// apiEnvelope is the standard response wrapper: every endpoint returns
// {"status": "success"|"error", "data": ..., "message": ...}.
type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// LTP fetches the last traded price for one instrument.
func (c *Client) LTP(ctx context.Context, symbol string) (float64, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/quote/ltp?i="+url.QueryEscape(symbol), nil)
	if err != nil {
		return 0, fmt.Errorf("kite: ltp %s: %w", symbol, err)
	}

	var quotes map[string]struct {
		LastPrice float64 `json:"last_price"`
	}
	if err := json.Unmarshal(data, &quotes); err != nil {
		return 0, fmt.Errorf("kite: decode ltp: %w", err)
	}
	q, ok := quotes[symbol]
	if !ok || q.LastPrice <= 0 {
		return 0, fmt.Errorf("kite: ltp %s: %w", symbol, domain.ErrNoQuote)
	}
	return q.LastPrice, nil
}

// Depth fetches the best bid and ask for one instrument.
func (c *Client) Depth(ctx context.Context, symbol string) (bid, ask float64, err error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/quote?i="+url.QueryEscape(symbol), nil)
	if err != nil {
		return 0, 0, fmt.Errorf("kite: depth %s: %w", symbol, err)
	}

	var quotes map[string]struct {
		Depth struct {
			Buy []struct {
				Price float64 `json:"price"`
			} `json:"buy"`
			Sell []struct {
				Price float64 `json:"price"`
			} `json:"sell"`
		} `json:"depth"`
	}
	if err := json.Unmarshal(data, &quotes); err != nil {
		return 0, 0, fmt.Errorf("kite: decode depth: %w", err)
	}
	q, ok := quotes[symbol]
	if !ok || len(q.Depth.Buy) == 0 || len(q.Depth.Sell) == 0 {
		return 0, 0, fmt.Errorf("kite: depth %s: %w", symbol, domain.ErrNoQuote)
	}
	return q.Depth.Buy[0].Price, q.Depth.Sell[0].Price, nil
}

// PlaceOrder places a regular MIS market order and returns the broker's
// order ID. The idempotency key rides on the order tag so a retried
// placement can be reconciled against the order book.
func (c *Client) PlaceOrder(ctx context.Context, req domain.BrokerOrderRequest) (string, error) {
	exchange, tradingSymbol := splitSymbol(req.Symbol)

	form := url.Values{}
	form.Set("exchange", exchange)
	form.Set("tradingsymbol", tradingSymbol)
	form.Set("transaction_type", strings.ToUpper(string(req.Side)))
	form.Set("quantity", strconv.FormatInt(req.Qty, 10))
	form.Set("order_type", "MARKET")
	form.Set("product", "MIS")
	form.Set("validity", "DAY")
	form.Set("tag", orderTag(req))

	data, err := c.doRequest(ctx, http.MethodPost, "/orders/regular", form)
	if err != nil {
		return "", fmt.Errorf("kite: place order %s: %w", req.Symbol, err)
	}

	var resp struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("kite: decode place response: %w", err)
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("kite: place order %s: empty order id", req.Symbol)
	}
	return resp.OrderID, nil
}

// CancelOrder cancels a pending order.
func (c *Client) CancelOrder(ctx context.Context, brokerOrderID string) error {
	if _, err := c.doRequest(ctx, http.MethodDelete, "/orders/regular/"+brokerOrderID, nil); err != nil {
		return fmt.Errorf("kite: cancel order %s: %w", brokerOrderID, err)
	}
	return nil
}

// ModifyOrder changes the quantity of a pending order.
func (c *Client) ModifyOrder(ctx context.Context, brokerOrderID string, qty int64) error {
	form := url.Values{}
	form.Set("quantity", strconv.FormatInt(qty, 10))

	if _, err := c.doRequest(ctx, http.MethodPut, "/orders/regular/"+brokerOrderID, form); err != nil {
		return fmt.Errorf("kite: modify order %s: %w", brokerOrderID, err)
	}
	return nil
}

// Orders returns the day's order book.
func (c *Client) Orders(ctx context.Context) ([]domain.Order, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("kite: orders: %w", err)
	}

	var apiOrders []struct {
		OrderID         string  `json:"order_id"`
		Exchange        string  `json:"exchange"`
		TradingSymbol   string  `json:"tradingsymbol"`
		TransactionType string  `json:"transaction_type"`
		Quantity        int64   `json:"quantity"`
		AveragePrice    float64 `json:"average_price"`
		Status          string  `json:"status"`
		Tag             string  `json:"tag"`
	}
	if err := json.Unmarshal(data, &apiOrders); err != nil {
		return nil, fmt.Errorf("kite: decode orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(apiOrders))
	for _, o := range apiOrders {
		side := domain.OrderSideBuy
		if strings.EqualFold(o.TransactionType, "SELL") {
			side = domain.OrderSideSell
		}
		orders = append(orders, domain.Order{
			BrokerOrderID: o.OrderID,
			Book:          domain.BookLive,
			Symbol:        o.Exchange + ":" + o.TradingSymbol,
			Side:          side,
			Qty:           o.Quantity,
			FillPrice:     o.AveragePrice,
			Status:        mapOrderStatus(o.Status),
			Reason:        o.Tag,
		})
	}
	return orders, nil
}

var _ domain.Broker = (*Client)(nil)

func (c *Client) doRequest(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrRateLimited
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrUnauthorized, resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if envelope.Status != "success" {
		return nil, fmt.Errorf("api error (HTTP %d): %s", resp.StatusCode, envelope.Message)
	}
	return envelope.Data, nil
}

// splitSymbol breaks "NSE:RELIANCE" into exchange and trading symbol.
// Symbols without an exchange prefix default to NSE.
func splitSymbol(symbol string) (exchange, tradingSymbol string) {
	if i := strings.IndexByte(symbol, ':'); i > 0 {
		return symbol[:i], symbol[i+1:]
	}
	return "NSE", symbol
}

// orderTag fits the idempotency key into the broker's 20-char tag limit.
func orderTag(req domain.BrokerOrderRequest) string {
	tag := strings.ReplaceAll(req.IdempotencyKey, "-", "")
	if len(tag) > 20 {
		tag = tag[:20]
	}
	return tag
}

func mapOrderStatus(s string) domain.OrderStatus {
	switch strings.ToUpper(s) {
	case "COMPLETE":
		return domain.OrderStatusFilled
	case "REJECTED":
		return domain.OrderStatusRejected
	case "CANCELLED":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusNew
	}
}
