// Package server exposes the engine's HTTP API and websocket stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
	"github.com/quantbay/tradebot/internal/server/handler"
	"github.com/quantbay/tradebot/internal/server/middleware"
	"github.com/quantbay/tradebot/internal/server/ws"
)

// Config holds the HTTP server settings.
type Config struct {
	Port        int
	CORSOrigins []string
	AuthToken   string

	// RateLimit caps requests per client IP per RateWindow. Zero disables.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the API handlers wired by the app layer.
type Handlers struct {
	Health    *handler.HealthHandler
	Strategy  *handler.StrategyHandler
	Orders    *handler.OrderHandler
	Positions *handler.PositionHandler
	Risk      *handler.RiskHandler
	Trade     *handler.TradeHandler
	Options   *handler.OptionsHandler
	Quotes    *handler.QuotesHandler
}

// Server is the HTTP front of the engine.
type Server struct {
	cfg     Config
	httpSrv *http.Server
	hub     *ws.Hub
	logger  *slog.Logger
}

// New builds the route table and middleware chain. limiter may be nil
// when rate limiting is disabled.
func New(cfg Config, h Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/healthz", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Health.GetStatus)

	mux.HandleFunc("POST /api/strategy/start", h.Strategy.Start)
	mux.HandleFunc("POST /api/strategy/stop", h.Strategy.Stop)
	mux.HandleFunc("GET /api/strategy/status", h.Strategy.Status)
	mux.HandleFunc("GET /api/strategy/types", h.Strategy.Types)

	mux.HandleFunc("POST /api/orders", h.Orders.SubmitOrder)
	mux.HandleFunc("GET /api/orders", h.Orders.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.Orders.GetOrder)
	mux.HandleFunc("PUT /api/orders/{id}", h.Orders.ModifyOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", h.Orders.CancelOrder)

	mux.HandleFunc("GET /api/positions", h.Positions.ListPositions)
	mux.HandleFunc("GET /api/pnl", h.Positions.GetPnL)

	mux.HandleFunc("GET /api/risk", h.Risk.GetLimits)
	mux.HandleFunc("PUT /api/risk", h.Risk.UpdateDefaults)
	mux.HandleFunc("PUT /api/risk/{symbol}", h.Risk.UpdateSymbol)

	mux.HandleFunc("GET /api/schedule", h.Trade.GetSchedule)
	mux.HandleFunc("PUT /api/schedule", h.Trade.UpdateSchedule)
	mux.HandleFunc("POST /api/squareoff/{symbol}", h.Trade.SquareOff)
	mux.HandleFunc("POST /api/squareoff-all", h.Trade.SquareOffAll)
	mux.HandleFunc("POST /api/paper/reset", h.Trade.ResetPaper)

	mux.HandleFunc("GET /api/options/chain", h.Options.GetChain)
	mux.HandleFunc("POST /api/options/atm", h.Options.PlaceATM)

	mux.HandleFunc("GET /api/quotes", h.Quotes.ListQuotes)

	mux.HandleFunc("GET /ws", hub.HandleWS)

	var root http.Handler = mux
	if cfg.RateLimit > 0 && limiter != nil {
		root = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(root)
	}
	root = middleware.Auth(cfg.AuthToken)(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		cfg: cfg,
		httpSrv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		hub:    hub,
		logger: logger.With(slog.String("component", "server")),
	}
}

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.Int("port", s.cfg.Port))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
