package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/quantbay/tradebot/internal/blob/s3"
	"github.com/quantbay/tradebot/internal/cache/redis"
	"github.com/quantbay/tradebot/internal/config"
	"github.com/quantbay/tradebot/internal/domain"
	"github.com/quantbay/tradebot/internal/notify"
	"github.com/quantbay/tradebot/internal/platform/kite"
	"github.com/quantbay/tradebot/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the application
// modes build their services on. Wire constructs it and the returned
// cleanup function tears it down.
type Dependencies struct {
	// Stores
	OrderStore domain.OrderStore
	FillStore  domain.FillStore
	AuditStore domain.AuditStore

	// Redis
	QuoteCache  domain.QuoteCache
	Bus         domain.EventBus
	RateLimiter domain.RateLimiter

	// Broker
	Broker      domain.Broker
	Provider    *kite.Provider
	Instruments *kite.Instruments

	// Archival (nil unless s3.enabled)
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.FillStore = postgres.NewFillStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.QuoteCache = redis.NewQuoteCache(redisClient)
	bus := redis.NewEventBus(redisClient)
	closers = append(closers, func() { _ = bus.Close() })
	deps.Bus = bus
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Broker (Kite) ---
	rest := kite.NewClient(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Broker.AccessToken, cfg.Broker.Timeout.Duration)
	wsFeed := kite.NewFeed(cfg.Broker.WSURL, cfg.Broker.APIKey, cfg.Broker.AccessToken, logger)
	deps.Broker = rest
	deps.Provider = kite.NewProvider(wsFeed, rest)
	deps.Instruments = kite.NewInstruments(cfg.Broker.InstrumentsURL, cfg.Broker.APIKey, cfg.Broker.AccessToken, logger)

	// --- S3 ledger archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.OrderStore,
			deps.FillStore,
			deps.AuditStore,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
