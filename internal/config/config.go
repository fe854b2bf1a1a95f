// Package config defines the top-level configuration for the trading engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantbay/tradebot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEBOT_* environment variables.
type Config struct {
	Broker   BrokerConfig   `toml:"broker"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Feed     FeedConfig     `toml:"feed"`
	Strategy StrategyConfig `toml:"strategy"`
	Router   RouterConfig   `toml:"router"`
	Risk     RiskConfig     `toml:"risk"`
	Schedule ScheduleConfig `toml:"schedule"`
	Session  SessionConfig  `toml:"session"`
	Paper    PaperConfig    `toml:"paper"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	DryRun   bool           `toml:"dry_run"`
	LogLevel string         `toml:"log_level"`
}

// BrokerConfig holds broker API endpoints and credentials.
type BrokerConfig struct {
	BaseURL        string   `toml:"base_url"`
	WSURL          string   `toml:"ws_url"`
	APIKey         string   `toml:"api_key"`
	AccessToken    string   `toml:"access_token"`
	InstrumentsURL string   `toml:"instruments_url"`
	Timeout        duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object storage parameters for the EOD ledger archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig tunes tick ingestion and fan-out.
type FeedConfig struct {
	QueueSize        int      `toml:"queue_size"`
	SnapshotInterval duration `toml:"snapshot_interval"`
	QuoteMaxAge      duration `toml:"quote_max_age"`
}

// StrategyConfig holds the auto-start strategy and engine tunables.
type StrategyConfig struct {
	AutoStart     bool               `toml:"auto_start"`
	Type          string             `toml:"type"`
	Symbols       []string           `toml:"symbols"`
	Qty           int64              `toml:"qty"`
	Params        map[string]float64 `toml:"params"`
	SignalTTL     duration           `toml:"signal_ttl"`
	SignalBuffer  int                `toml:"signal_buffer"`
	RecentSignals int                `toml:"recent_signals"`
}

// RouterConfig tunes order routing and live retries.
type RouterConfig struct {
	DedupTTL     duration `toml:"dedup_ttl"`
	MaxRetries   int      `toml:"max_retries"`
	RetryBackoff duration `toml:"retry_backoff"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
}

// RiskConfig holds the default exit rules and the monitor cadence.
type RiskConfig struct {
	StopLossPct      float64  `toml:"sl_pct"`
	TakeProfitPct    float64  `toml:"tp_pct"`
	TrailActivation  float64  `toml:"trail_activation_points"`
	TrailDistance    float64  `toml:"trail_points_after_activation"`
	ExitThreeCandles bool     `toml:"exit_three_candles"`
	Interval         duration `toml:"interval"`
	CandleInterval   duration `toml:"candle_interval"`
}

// Limits converts the config section into domain limits.
func (r RiskConfig) Limits() domain.RiskLimits {
	return domain.RiskLimits{
		StopLossPct:     r.StopLossPct,
		TakeProfitPct:   r.TakeProfitPct,
		TrailActivation: r.TrailActivation,
		TrailDistance:   r.TrailDistance,
		ExitThreeCandle: r.ExitThreeCandles,
	}
}

// ScheduleConfig drives the daily start/stop cycle.
type ScheduleConfig struct {
	Start        string   `toml:"start"`
	Stop         string   `toml:"stop"`
	SquareOffEOD bool     `toml:"square_off_eod"`
	Timezone     string   `toml:"timezone"`
	Interval     duration `toml:"interval"`
}

// SessionConfig bounds when new entries are accepted.
type SessionConfig struct {
	Open  string `toml:"open"`
	Close string `toml:"close"`
}

// PaperConfig seeds the paper ledger.
type PaperConfig struct {
	StartingCash float64 `toml:"starting_cash"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	AuthToken   string   `toml:"auth_token"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			BaseURL:        "https://api.kite.trade",
			WSURL:          "wss://ws.kite.trade",
			InstrumentsURL: "https://api.kite.trade/instruments",
			Timeout:        duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "ap-south-1",
			Bucket:         "tradebot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			QueueSize:        1024,
			SnapshotInterval: duration{time.Second},
			QuoteMaxAge:      duration{5 * time.Second},
		},
		Strategy: StrategyConfig{
			AutoStart:     false,
			Type:          "sma_crossover",
			Symbols:       []string{},
			Qty:           1,
			Params:        map[string]float64{},
			SignalTTL:     duration{30 * time.Second},
			SignalBuffer:  32,
			RecentSignals: 50,
		},
		Router: RouterConfig{
			DedupTTL:     duration{10 * time.Second},
			MaxRetries:   3,
			RetryBackoff: duration{500 * time.Millisecond},
			RateLimit:    10,
			RateWindow:   duration{time.Second},
		},
		Risk: RiskConfig{
			StopLossPct:      0.02,
			TakeProfitPct:    0.04,
			TrailActivation:  10,
			TrailDistance:    5,
			ExitThreeCandles: false,
			Interval:         duration{time.Second},
			CandleInterval:   duration{time.Minute},
		},
		Schedule: ScheduleConfig{
			Start:        "09:15",
			Stop:         "15:25",
			SquareOffEOD: true,
			Timezone:     "Asia/Kolkata",
			Interval:     duration{time.Second},
		},
		Session: SessionConfig{
			Open:  "09:15",
			Close: "15:30",
		},
		Paper: PaperConfig{
			StartingCash: 1_000_000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   50,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"fill", "risk_exit", "square_off", "strategy", "schedule"},
		},
		Mode:     "full",
		DryRun:   true,
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"server":  true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Broker — credentials are mandatory once live routing is possible.
	if c.Broker.BaseURL == "" {
		errs = append(errs, "broker: base_url must not be empty")
	}
	if !c.DryRun {
		if c.Broker.APIKey == "" {
			errs = append(errs, "broker: api_key is required when dry_run is false")
		}
		if c.Broker.AccessToken == "" {
			errs = append(errs, "broker: access_token is required when dry_run is false")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Feed
	if c.Feed.QueueSize < 1 {
		errs = append(errs, "feed: queue_size must be >= 1")
	}
	if c.Feed.SnapshotInterval.Duration <= 0 {
		errs = append(errs, "feed: snapshot_interval must be positive")
	}

	// Strategy
	if c.Strategy.Qty < 1 {
		errs = append(errs, "strategy: qty must be >= 1")
	}
	if c.Strategy.SignalBuffer < 1 {
		errs = append(errs, "strategy: signal_buffer must be >= 1")
	}
	if c.Strategy.AutoStart {
		if !domain.ValidStrategyType(domain.StrategyType(c.Strategy.Type)) {
			errs = append(errs, fmt.Sprintf("strategy: unknown type %q", c.Strategy.Type))
		}
		if len(c.Strategy.Symbols) == 0 {
			errs = append(errs, "strategy: symbols must not be empty when auto_start is set")
		}
	}

	// Router
	if c.Router.MaxRetries < 0 {
		errs = append(errs, "router: max_retries must be >= 0")
	}
	if c.Router.RateLimit < 1 {
		errs = append(errs, "router: rate_limit must be >= 1")
	}

	// Risk
	if c.Risk.StopLossPct < 0 || c.Risk.StopLossPct >= 1 {
		errs = append(errs, "risk: sl_pct must be in [0, 1)")
	}
	if c.Risk.TakeProfitPct < 0 {
		errs = append(errs, "risk: tp_pct must be >= 0")
	}
	if c.Risk.TrailActivation < 0 || c.Risk.TrailDistance < 0 {
		errs = append(errs, "risk: trailing point values must be >= 0")
	}
	if c.Risk.Interval.Duration <= 0 {
		errs = append(errs, "risk: interval must be positive")
	}

	// Schedule and session
	for _, f := range []struct{ name, val string }{
		{"schedule.start", c.Schedule.Start},
		{"schedule.stop", c.Schedule.Stop},
		{"session.open", c.Session.Open},
		{"session.close", c.Session.Close},
	} {
		if _, err := domain.ParseTimeOfDay(f.val); err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid time %q", f.name, f.val))
		}
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("schedule: unknown timezone %q", c.Schedule.Timezone))
	}

	// Paper
	if c.Paper.StartingCash <= 0 {
		errs = append(errs, "paper: starting_cash must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
