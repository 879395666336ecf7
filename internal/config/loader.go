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
// built-in defaults, applies FUTGUARD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FUTGUARD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "FUTGUARD_MODE")
	setStr(&cfg.LogLevel, "FUTGUARD_LOG_LEVEL")

	setStr(&cfg.Exchange.BaseURL, "FUTGUARD_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.WsURL, "FUTGUARD_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.APIKey, "FUTGUARD_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.APISecret, "FUTGUARD_EXCHANGE_API_SECRET")
	setStrSlice(&cfg.Exchange.Symbols, "FUTGUARD_EXCHANGE_SYMBOLS")

	setStr(&cfg.Postgres.DSN, "FUTGUARD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FUTGUARD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FUTGUARD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FUTGUARD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FUTGUARD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FUTGUARD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FUTGUARD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FUTGUARD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FUTGUARD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FUTGUARD_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "FUTGUARD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUTGUARD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUTGUARD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FUTGUARD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FUTGUARD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FUTGUARD_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "FUTGUARD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FUTGUARD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FUTGUARD_S3_REGION")
	setStr(&cfg.S3.Bucket, "FUTGUARD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FUTGUARD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FUTGUARD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FUTGUARD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FUTGUARD_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "FUTGUARD_S3_RETENTION_DAYS")

	setFloat64(&cfg.Ledger.InitialBalance, "FUTGUARD_LEDGER_INITIAL_BALANCE")
	setFloat64(&cfg.Ledger.BufferRatio, "FUTGUARD_LEDGER_BUFFER_RATIO")
	setFloat64(&cfg.Ledger.FeeRate, "FUTGUARD_LEDGER_FEE_RATE")
	setFloat64(&cfg.Ledger.SlippageRate, "FUTGUARD_LEDGER_SLIPPAGE_RATE")
	setInt(&cfg.Ledger.DefaultLeverage, "FUTGUARD_LEDGER_DEFAULT_LEVERAGE")

	setDuration(&cfg.Monitor.Interval, "FUTGUARD_MONITOR_INTERVAL")
	setInt(&cfg.Monitor.MaxConcurrent, "FUTGUARD_MONITOR_MAX_CONCURRENT")
	setInt(&cfg.Monitor.OrderPollAttempts, "FUTGUARD_MONITOR_ORDER_POLL_ATTEMPTS")
	setDuration(&cfg.Monitor.OrderPollBackoff, "FUTGUARD_MONITOR_ORDER_POLL_BACKOFF")
	setDuration(&cfg.Monitor.LockTTL, "FUTGUARD_MONITOR_LOCK_TTL")
	setDuration(&cfg.Monitor.MaxStaleness, "FUTGUARD_MONITOR_MAX_STALENESS")
	setBool(&cfg.Monitor.StopLossEnabled, "FUTGUARD_MONITOR_STOP_LOSS_ENABLED")
	setBool(&cfg.Monitor.TrailingStopEnabled, "FUTGUARD_MONITOR_TRAILING_STOP_ENABLED")
	setBool(&cfg.Monitor.PartialProfitEnabled, "FUTGUARD_MONITOR_PARTIAL_PROFIT_ENABLED")
	setDuration(&cfg.Monitor.ReconcileInterval, "FUTGUARD_MONITOR_RECONCILE_INTERVAL")

	setStr(&cfg.Notify.TelegramToken, "FUTGUARD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FUTGUARD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FUTGUARD_NOTIFY_DISCORD_WEBHOOK_URL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStrSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
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
