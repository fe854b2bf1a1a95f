package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantbay/tradebot/internal/domain"
	"github.com/quantbay/tradebot/internal/feed"
	"github.com/quantbay/tradebot/internal/router"
	"github.com/quantbay/tradebot/internal/server"
	"github.com/quantbay/tradebot/internal/server/handler"
	"github.com/quantbay/tradebot/internal/server/ws"
	"github.com/quantbay/tradebot/internal/service"
	"github.com/quantbay/tradebot/internal/strategy"
)

// runtime holds the services built on top of Dependencies for one mode.
type runtime struct {
	quotes    *service.QuoteService
	book      *service.PositionBook
	engine    *feedAwareEngine
	router    *router.Router
	risk      *service.RiskMonitor
	scheduler *service.Scheduler
	options   *service.OptionsService
	ingestor  *feed.Ingestor
	auto      *domain.StrategyConfig
	tradeBook domain.Book
	startedAt time.Time
}

// modeOpts selects which subsystems a mode runs.
type modeOpts struct {
	feed  bool // tick ingestion, risk monitor
	trade bool // scheduler with auto-start strategy
	serve bool // HTTP API and websocket hub
}

// TradeMode runs the headless trading loop: feed, strategy, router, risk,
// and scheduler. The HTTP server is included when enabled.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	return a.run(ctx, deps, modeOpts{feed: true, trade: true, serve: a.cfg.Server.Enabled})
}

// MonitorMode runs the feed and risk monitor without starting any strategy.
// Open positions are still protected and can be squared off via the API.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	return a.run(ctx, deps, modeOpts{feed: true, trade: false, serve: true})
}

// ServerMode runs only the HTTP API over the stores; quotes come from the
// shared cache populated by another instance.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	return a.run(ctx, deps, modeOpts{feed: false, trade: false, serve: true})
}

// FullMode runs every subsystem.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	return a.run(ctx, deps, modeOpts{feed: true, trade: true, serve: true})
}

func (a *App) run(ctx context.Context, deps *Dependencies, opts modeOpts) error {
	rt, err := a.buildRuntime(ctx, deps, opts)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.router.Run(ctx)
	})

	if opts.feed {
		rt.ingestor.Register("strategy", func(t domain.Tick) { rt.engine.OnTick(ctx, t) })
		rt.ingestor.Register("risk", rt.risk.OnTick)

		if rt.auto != nil {
			if err := deps.Provider.Subscribe(rt.auto.Symbols); err != nil {
				a.logger.WarnContext(ctx, "initial feed subscription failed",
					slog.Any("symbols", rt.auto.Symbols),
					slog.String("error", err.Error()))
			}
		}

		g.Go(func() error {
			return rt.ingestor.Run(ctx)
		})
		g.Go(func() error {
			return rt.risk.Run(ctx)
		})
	}

	if opts.trade {
		g.Go(func() error {
			return rt.scheduler.Run(ctx)
		})
	}

	if opts.serve {
		a.startHTTPServer(ctx, g, deps, rt)
	}

	return g.Wait()
}

// buildRuntime assembles the domain services for one mode.
func (a *App) buildRuntime(ctx context.Context, deps *Dependencies, opts modeOpts) (*runtime, error) {
	loc, err := time.LoadLocation(a.cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("app: load timezone %q: %w", a.cfg.Schedule.Timezone, err)
	}
	session, err := parseSession(a.cfg.Session.Open, a.cfg.Session.Close)
	if err != nil {
		return nil, err
	}
	sched, err := parseSchedule(a.cfg.Schedule.Start, a.cfg.Schedule.Stop)
	if err != nil {
		return nil, err
	}
	sched.SquareOffEOD = a.cfg.Schedule.SquareOffEOD
	sched.Timezone = a.cfg.Schedule.Timezone

	tradeBook := domain.BookPaper
	if !a.cfg.DryRun {
		tradeBook = domain.BookLive
	}

	quotes := service.NewQuoteService(deps.QuoteCache, deps.Provider, a.cfg.Feed.QuoteMaxAge.Duration, a.logger)

	book := service.NewPositionBook(deps.FillStore, deps.AuditStore, deps.Bus, quotes, a.cfg.Paper.StartingCash, a.logger)
	if err := book.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("app: rebuild position book: %w", err)
	}

	signalCh := make(chan domain.TradeSignal, a.cfg.Strategy.SignalBuffer)
	engine := strategy.NewEngine(
		strategy.DefaultRegistry(),
		strategy.Deps{Logger: a.logger, Chains: deps.Instruments},
		signalCh,
		a.cfg.Strategy.SignalTTL.Duration,
		a.cfg.Strategy.RecentSignals,
		a.logger,
	)

	rtr := router.New(router.Config{
		Book:         tradeBook,
		DryRun:       a.cfg.DryRun,
		MaxRetries:   a.cfg.Router.MaxRetries,
		RetryBackoff: a.cfg.Router.RetryBackoff.Duration,
		DedupTTL:     a.cfg.Router.DedupTTL.Duration,
		RateLimit:    a.cfg.Router.RateLimit,
		RateWindow:   a.cfg.Router.RateWindow.Duration,
		Session:      session,
		Location:     loc,
	}, signalCh, deps.OrderStore, book, quotes, deps.Broker, deps.RateLimiter, deps.Bus, deps.Notifier, a.logger)

	riskCfg := domain.RiskConfig{Defaults: a.cfg.Risk.Limits()}
	risk := service.NewRiskMonitor(riskCfg, book, quotes, rtr, tradeBook, a.cfg.Risk.Interval.Duration, a.logger)

	var auto *domain.StrategyConfig
	if opts.trade && a.cfg.Strategy.AutoStart {
		auto = &domain.StrategyConfig{
			Type:    domain.StrategyType(a.cfg.Strategy.Type),
			Symbols: a.cfg.Strategy.Symbols,
			Qty:     a.cfg.Strategy.Qty,
			Params:  a.cfg.Strategy.Params,
		}
	}

	fe := &feedAwareEngine{Engine: engine, provider: deps.Provider}

	var archiver service.DayArchiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	scheduler := service.NewScheduler(sched, loc, fe, rtr, archiver, auto, tradeBook, a.logger)

	options := service.NewOptionsService(deps.Instruments, quotes, rtr, a.logger)

	ingestor := feed.NewIngestor(deps.Provider, deps.QuoteCache, deps.Bus,
		a.cfg.Feed.QueueSize, a.cfg.Feed.SnapshotInterval.Duration, a.logger)

	return &runtime{
		quotes:    quotes,
		book:      book,
		engine:    fe,
		router:    rtr,
		risk:      risk,
		scheduler: scheduler,
		options:   options,
		ingestor:  ingestor,
		auto:      auto,
		tradeBook: tradeBook,
		startedAt: time.Now(),
	}, nil
}

// startHTTPServer adds the API server and websocket hub to the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	status := a.statusFunc(deps, rt)

	hub := ws.NewHub(deps.Bus, status, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(status),
		Strategy:  handler.NewStrategyHandler(rt.engine, a.logger),
		Orders:    handler.NewOrderHandler(deps.OrderStore, rt.router, a.logger),
		Positions: handler.NewPositionHandler(rt.book),
		Risk:      handler.NewRiskHandler(rt.risk),
		Trade:     handler.NewTradeHandler(rt.router, rt.scheduler, a.logger),
		Options:   handler.NewOptionsHandler(rt.options, a.logger),
		Quotes:    handler.NewQuotesHandler(rt.ingestor),
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AuthToken:   a.cfg.Server.AuthToken,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// statusFunc assembles the engine status snapshot served by /api/status and
// pushed to new websocket clients.
func (a *App) statusFunc(deps *Dependencies, rt *runtime) func() domain.EngineStatus {
	return func() domain.EngineStatus {
		stats := rt.ingestor.Stats()
		return domain.EngineStatus{
			Mode:          a.cfg.Mode,
			FeedConnected: deps.Provider.Connected(),
			Uptime:        time.Since(rt.startedAt),
			Strategy:      rt.engine.Status(),
			OpenPaper:     countOpen(rt.book.Positions(domain.BookPaper)),
			OpenLive:      countOpen(rt.book.Positions(domain.BookLive)),
			TicksSeen:     stats.TicksSeen,
			TicksDropped:  stats.TicksDropped,
		}
	}
}

func countOpen(positions []domain.Position) int {
	n := 0
	for _, p := range positions {
		if p.Qty != 0 {
			n++
		}
	}
	return n
}

// feedAwareEngine subscribes a strategy's symbols to the tick stream before
// the engine starts it, so API- and schedule-driven starts both get data.
type feedAwareEngine struct {
	*strategy.Engine
	provider domain.QuoteProvider
}

func (e *feedAwareEngine) Start(ctx context.Context, cfg domain.StrategyConfig) error {
	if err := e.provider.Subscribe(cfg.Symbols); err != nil {
		return fmt.Errorf("app: subscribe %v: %w", cfg.Symbols, err)
	}
	return e.Engine.Start(ctx, cfg)
}

func parseSession(open, close string) (domain.SessionWindow, error) {
	var w domain.SessionWindow
	var err error
	if w.Open, err = domain.ParseTimeOfDay(open); err != nil {
		return w, fmt.Errorf("app: session open: %w", err)
	}
	if w.Close, err = domain.ParseTimeOfDay(close); err != nil {
		return w, fmt.Errorf("app: session close: %w", err)
	}
	return w, nil
}

func parseSchedule(start, stop string) (domain.Schedule, error) {
	var s domain.Schedule
	var err error
	if s.Start, err = domain.ParseTimeOfDay(start); err != nil {
		return s, fmt.Errorf("app: schedule start: %w", err)
	}
	if s.Stop, err = domain.ParseTimeOfDay(stop); err != nil {
		return s, fmt.Errorf("app: schedule stop: %w", err)
	}
	return s, nil
}
