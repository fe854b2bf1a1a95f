package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantbay/tradebot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// wsCommand is a subscribe/unsubscribe message sent to the feed.
type wsCommand struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// wsTick is a tick message received from the feed.
type wsTick struct {
	Symbol    string  `json:"symbol"`
	LastPrice float64 `json:"last_price"`
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`
	Volume    int64   `json:"volume"`
	OHLC      struct {
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"ohlc"`
	ExchangeTS int64 `json:"exchange_timestamp"`
	Timestamp  int64 `json:"timestamp"`
}

// Feed streams ticks over the broker's WebSocket. Subscriptions made
// before the connection is up are tracked and flushed on connect, and
// restored after every reconnect.
type Feed struct {
	wsURL       string
	apiKey      string
	accessToken string
	logger      *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	subs      map[string]struct{}
}

func NewFeed(wsURL, apiKey, accessToken string, logger *slog.Logger) *Feed {
	return &Feed{
		wsURL:       wsURL,
		apiKey:      apiKey,
		accessToken: accessToken,
		logger:      logger.With(slog.String("component", "feed_ws")),
		subs:        make(map[string]struct{}),
	}
}

// Subscribe registers symbols for streaming. If the stream is up the
// command is sent immediately; otherwise it is flushed on connect.
func (f *Feed) Subscribe(symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fresh := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := f.subs[s]; !ok {
			f.subs[s] = struct{}{}
			fresh = append(fresh, s)
		}
	}
	if len(fresh) == 0 || !f.connected {
		return nil
	}
	if err := f.sendCommand(wsCommand{Action: "subscribe", Symbols: fresh}); err != nil {
		return fmt.Errorf("kite/ws: subscribe: %w", err)
	}
	return nil
}

// Unsubscribe removes symbols from the stream.
func (f *Feed) Unsubscribe(symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range symbols {
		delete(f.subs, s)
	}
	if !f.connected {
		return nil
	}
	if err := f.sendCommand(wsCommand{Action: "unsubscribe", Symbols: symbols}); err != nil {
		return fmt.Errorf("kite/ws: unsubscribe: %w", err)
	}
	return nil
}

// Run drives the stream until ctx is done, reconnecting with
// exponential backoff on any transport error.
func (f *Feed) Run(ctx context.Context, onTick func(domain.Tick)) error {
	delay := reconnectDelay

	for {
		if err := f.connect(ctx); err != nil {
			f.logger.Warn("feed connect failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}
		delay = reconnectDelay

		err := f.readLoop(ctx, onTick)
		f.closeConn()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()))
	}
}

// Connected reports whether the stream is currently up.
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	url := fmt.Sprintf("%s?api_key=%s&access_token=%s", f.wsURL, f.apiKey, f.accessToken)

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("kite/ws: connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	pending := make([]string, 0, len(f.subs))
	for s := range f.subs {
		pending = append(pending, s)
	}
	var flushErr error
	if len(pending) > 0 {
		flushErr = f.sendCommand(wsCommand{Action: "subscribe", Symbols: pending})
	}
	f.mu.Unlock()

	if flushErr != nil {
		f.closeConn()
		return fmt.Errorf("kite/ws: flush subscriptions: %w", flushErr)
	}
	f.logger.Info("feed connected", slog.Int("symbols", len(pending)))
	return nil
}

func (f *Feed) readLoop(ctx context.Context, onTick func(domain.Tick)) error {
	pingDone := make(chan struct{})
	defer close(pingDone)
	go f.pingLoop(pingDone)

	// Unblock ReadMessage when the context is cancelled.
	stop := context.AfterFunc(ctx, f.closeConn)
	defer stop()

	for {
		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn == nil {
			return fmt.Errorf("kite/ws: %w", domain.ErrWSDisconnect)
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("kite/ws: read: %w", err)
		}
		if tick, ok := parseTick(message); ok {
			onTick(tick)
		}
	}
}

func (f *Feed) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			f.mu.Lock()
			conn := f.conn
			f.mu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendCommand writes a JSON command. Caller must hold f.mu.
func (f *Feed) sendCommand(cmd wsCommand) error {
	if f.conn == nil {
		return domain.ErrWSDisconnect
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

func (f *Feed) closeConn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = f.conn.Close()
		f.conn = nil
	}
	f.connected = false
}

func parseTick(raw []byte) (domain.Tick, bool) {
	var msg wsTick
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Symbol == "" {
		return domain.Tick{}, false
	}

	var exchange time.Time
	if msg.ExchangeTS > 0 {
		exchange = time.Unix(msg.ExchangeTS, 0)
	}
	return domain.Tick{
		Symbol:  msg.Symbol,
		LTP:     msg.LastPrice,
		BestBid: msg.BuyPrice,
		BestAsk: msg.SellPrice,
		Volume:  msg.Volume,
		OHLC: domain.OHLC{
			Open:  msg.OHLC.Open,
			High:  msg.OHLC.High,
			Low:   msg.OHLC.Low,
			Close: msg.OHLC.Close,
		},
		Exchange: exchange,
		Received: time.Now(),
	}, true
}
