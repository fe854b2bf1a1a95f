package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Broker ──
	setStr(&cfg.Broker.BaseURL, "TRADEBOT_BROKER_BASE_URL")
	setStr(&cfg.Broker.WSURL, "TRADEBOT_BROKER_WS_URL")
	setStr(&cfg.Broker.APIKey, "TRADEBOT_BROKER_API_KEY")
	setStr(&cfg.Broker.AccessToken, "TRADEBOT_BROKER_ACCESS_TOKEN")
	setStr(&cfg.Broker.InstrumentsURL, "TRADEBOT_BROKER_INSTRUMENTS_URL")
	setDuration(&cfg.Broker.Timeout, "TRADEBOT_BROKER_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "TRADEBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRADEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRADEBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRADEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEBOT_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setInt(&cfg.Feed.QueueSize, "TRADEBOT_FEED_QUEUE_SIZE")
	setDuration(&cfg.Feed.SnapshotInterval, "TRADEBOT_FEED_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Feed.QuoteMaxAge, "TRADEBOT_FEED_QUOTE_MAX_AGE")

	// ── Strategy ──
	setBool(&cfg.Strategy.AutoStart, "TRADEBOT_STRATEGY_AUTO_START")
	setStr(&cfg.Strategy.Type, "TRADEBOT_STRATEGY_TYPE")
	setStringSlice(&cfg.Strategy.Symbols, "TRADEBOT_STRATEGY_SYMBOLS")
	setInt64(&cfg.Strategy.Qty, "TRADEBOT_STRATEGY_QTY")
	setDuration(&cfg.Strategy.SignalTTL, "TRADEBOT_STRATEGY_SIGNAL_TTL")
	setInt(&cfg.Strategy.SignalBuffer, "TRADEBOT_STRATEGY_SIGNAL_BUFFER")
	setInt(&cfg.Strategy.RecentSignals, "TRADEBOT_STRATEGY_RECENT_SIGNALS")

	// ── Router ──
	setDuration(&cfg.Router.DedupTTL, "TRADEBOT_ROUTER_DEDUP_TTL")
	setInt(&cfg.Router.MaxRetries, "TRADEBOT_ROUTER_MAX_RETRIES")
	setDuration(&cfg.Router.RetryBackoff, "TRADEBOT_ROUTER_RETRY_BACKOFF")
	setInt(&cfg.Router.RateLimit, "TRADEBOT_ROUTER_RATE_LIMIT")
	setDuration(&cfg.Router.RateWindow, "TRADEBOT_ROUTER_RATE_WINDOW")

	// ── Risk ──
	setFloat64(&cfg.Risk.StopLossPct, "TRADEBOT_RISK_SL_PCT")
	setFloat64(&cfg.Risk.TakeProfitPct, "TRADEBOT_RISK_TP_PCT")
	setFloat64(&cfg.Risk.TrailActivation, "TRADEBOT_RISK_TRAIL_ACTIVATION_POINTS")
	setFloat64(&cfg.Risk.TrailDistance, "TRADEBOT_RISK_TRAIL_POINTS_AFTER_ACTIVATION")
	setBool(&cfg.Risk.ExitThreeCandles, "TRADEBOT_RISK_EXIT_THREE_CANDLES")
	setDuration(&cfg.Risk.Interval, "TRADEBOT_RISK_INTERVAL")

	// ── Schedule / session ──
	setStr(&cfg.Schedule.Start, "TRADEBOT_SCHEDULE_START")
	setStr(&cfg.Schedule.Stop, "TRADEBOT_SCHEDULE_STOP")
	setBool(&cfg.Schedule.SquareOffEOD, "TRADEBOT_SCHEDULE_SQUARE_OFF_EOD")
	setStr(&cfg.Schedule.Timezone, "TRADEBOT_SCHEDULE_TIMEZONE")
	setStr(&cfg.Session.Open, "TRADEBOT_SESSION_OPEN")
	setStr(&cfg.Session.Close, "TRADEBOT_SESSION_CLOSE")

	// ── Paper ──
	setFloat64(&cfg.Paper.StartingCash, "TRADEBOT_PAPER_STARTING_CASH")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AuthToken, "TRADEBOT_SERVER_AUTH_TOKEN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEBOT_MODE")
	setBool(&cfg.DryRun, "TRADEBOT_DRY_RUN")
	setStr(&cfg.LogLevel, "TRADEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
