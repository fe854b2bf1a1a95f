package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// QuoteCache implements domain.QuoteCache using Redis hashes.
// Each instrument's latest quote is stored as a hash at key "quote:{symbol}"
// with ltp/bid/ask/volume/ohlc fields and a Unix nanosecond timestamp.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

// Set stores the latest quote for a symbol.
func (qc *QuoteCache) Set(ctx context.Context, q domain.Quote) error {
	fields := map[string]interface{}{
		"ltp":    strconv.FormatFloat(q.LTP, 'f', -1, 64),
		"bid":    strconv.FormatFloat(q.BestBid, 'f', -1, 64),
		"ask":    strconv.FormatFloat(q.BestAsk, 'f', -1, 64),
		"volume": strconv.FormatInt(q.Volume, 10),
		"open":   strconv.FormatFloat(q.OHLC.Open, 'f', -1, 64),
		"high":   strconv.FormatFloat(q.OHLC.High, 'f', -1, 64),
		"low":    strconv.FormatFloat(q.OHLC.Low, 'f', -1, 64),
		"close":  strconv.FormatFloat(q.OHLC.Close, 'f', -1, 64),
		"ts":     strconv.FormatInt(q.ReceivedAt.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, quoteKey(q.Symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Symbol, err)
	}
	return nil
}

// Get retrieves the latest quote for a symbol.
// It returns domain.ErrNotFound when the key does not exist.
func (qc *QuoteCache) Get(ctx context.Context, symbol string) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}
	return quoteFromFields(symbol, vals)
}

// Snapshot retrieves the latest quotes for multiple symbols using a pipeline.
// Symbols whose keys do not exist are silently omitted from the result map.
func (qc *QuoteCache) Snapshot(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, s := range symbols {
		cmds[s] = pipe.HGetAll(ctx, quoteKey(s))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: quote snapshot pipeline: %w", err)
	}

	result := make(map[string]domain.Quote, len(symbols))
	for s, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := quoteFromFields(s, vals)
		if err != nil {
			continue
		}
		result[s] = q
	}

	return result, nil
}

func quoteFromFields(symbol string, vals map[string]string) (domain.Quote, error) {
	q := domain.Quote{Symbol: symbol}

	ltp, err := strconv.ParseFloat(vals["ltp"], 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ltp %s: %w", symbol, err)
	}
	q.LTP = ltp

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}
	q.ReceivedAt = time.Unix(0, tsNano)

	// Depth and OHLC fields are best-effort; missing fields parse to zero.
	q.BestBid, _ = strconv.ParseFloat(vals["bid"], 64)
	q.BestAsk, _ = strconv.ParseFloat(vals["ask"], 64)
	q.Volume, _ = strconv.ParseInt(vals["volume"], 10, 64)
	q.OHLC.Open, _ = strconv.ParseFloat(vals["open"], 64)
	q.OHLC.High, _ = strconv.ParseFloat(vals["high"], 64)
	q.OHLC.Low, _ = strconv.ParseFloat(vals["low"], 64)
	q.OHLC.Close, _ = strconv.ParseFloat(vals["close"], 64)

	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
