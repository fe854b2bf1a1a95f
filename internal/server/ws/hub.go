// Package ws bridges the engine's event bus to browser websocket clients.
// Each client holds a bounded send queue; slow consumers drop messages
// rather than stalling the hub.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantbay/tradebot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// defaultChannels are bridged from the event bus to every connected client
// that subscribes to them.
var defaultChannels = []string{
	"orders",
	"positions.*",
	"quotes.snapshot",
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// broadcastMsg is one event fanned out to subscribed clients.
type broadcastMsg struct {
	channel string
	payload []byte
}

// wsEnvelope is the frame format sent to clients.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      int64           `json:"ts"`
}

// subscribeMsg is what clients send to change their channel set.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// client is one connected websocket peer.
type client struct {
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

func newClient(conn *websocket.Conn) *client {
	subs := make(map[string]bool, len(defaultChannels))
	for _, ch := range defaultChannels {
		subs[ch] = true
	}
	return &client{
		conn: conn,
		send: make(chan []byte, 256),
		subs: subs,
	}
}

// isSubscribed reports whether the client wants messages on channel.
// A subscription ending in ".*" matches any channel with that prefix.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if strings.HasSuffix(sub, ".*") && strings.HasPrefix(channel, strings.TrimSuffix(sub, "*")) {
			return true
		}
	}
	return false
}

func (c *client) setSubs(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = make(map[string]bool, len(channels))
	for _, ch := range channels {
		c.subs[ch] = true
	}
}

// Hub relays bus events to websocket clients.
type Hub struct {
	bus    domain.EventBus
	status func() domain.EngineStatus
	logger *slog.Logger

	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub creates a Hub. status provides the snapshot sent to each client
// on connect; it may be nil.
func NewHub(bus domain.EventBus, status func() domain.EngineStatus, logger *slog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		status:     status,
		logger:     logger.With(slog.String("component", "ws_hub")),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
	}
}

// Run pumps bus subscriptions into connected clients until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for _, pattern := range defaultChannels {
		if err := h.subscribeToChannel(ctx, pattern); err != nil {
			h.logger.ErrorContext(ctx, "bus subscription failed",
				slog.String("pattern", pattern),
				slog.String("error", err.Error()),
			)
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("clients", n))
		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("clients", n))
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// subscribeToChannel bridges one bus pattern into the broadcast channel.
func (h *Hub) subscribeToChannel(ctx context.Context, pattern string) error {
	msgs, err := h.bus.Subscribe(ctx, pattern)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case h.broadcast <- broadcastMsg{channel: m.Channel, payload: m.Payload}:
				default:
					// hub saturated, drop rather than back up the bus
				}
			}
		}
	}()
	return nil
}

func (h *Hub) fanOut(msg broadcastMsg) {
	frame, err := json.Marshal(wsEnvelope{
		Channel: msg.channel,
		Data:    msg.payload,
		TS:      time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(msg.channel) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping frame for slow client", slog.String("channel", msg.channel))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and serves it until either side disconnects.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(conn)
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)

	h.sendInitialStatus(c)
}

// readPump consumes client frames; the only recognised message is a
// subscription update.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var msg subscribeMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Action == "subscribe" && len(msg.Channels) > 0 {
			c.setSubs(msg.Channels)
		}
	}
}

// writePump drains the client's send queue and keeps the connection alive
// with pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendInitialStatus pushes one engine status frame so a fresh client has
// state before the first bus event arrives.
func (h *Hub) sendInitialStatus(c *client) {
	if h.status == nil {
		return
	}
	payload, err := json.Marshal(h.status())
	if err != nil {
		return
	}
	frame, err := json.Marshal(wsEnvelope{
		Channel: "status",
		Data:    payload,
		TS:      time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}
