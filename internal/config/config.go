// Package config defines the top-level configuration for futguard and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FUTGUARD_* environment
// variables.
type Config struct {
	Exchange Exchange `toml:"exchange"`
	Postgres Postgres `toml:"postgres"`
	Redis    Redis    `toml:"redis"`
	S3       S3       `toml:"s3"`
	Ledger   Ledger   `toml:"ledger"`
	Monitor  Monitor  `toml:"monitor"`
	Risk     Risk     `toml:"risk"`
	Notify   Notify   `toml:"notify"`
	Mode     string   `toml:"mode"`
	LogLevel string   `toml:"log_level"`
}

// Exchange holds the trading venue endpoints and credentials.
type Exchange struct {
	BaseURL   string   `toml:"base_url"`
	WsURL     string   `toml:"ws_url"`
	APIKey    string   `toml:"api_key"`
	APISecret string   `toml:"api_secret"`
	Symbols   []string `toml:"symbols"`
}

// Postgres holds PostgreSQL connection parameters.
type Postgres struct {
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

// Redis holds Redis connection parameters.
type Redis struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3 holds object-storage parameters for trade archival.
type S3 struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// Ledger holds the paper margin ledger parameters.
type Ledger struct {
	InitialBalance float64 `toml:"initial_balance"`
	// BufferRatio is the maintenance buffer added on top of required margin:
	// reserved = margin * (1 + buffer_ratio).
	BufferRatio  float64 `toml:"buffer_ratio"`
	FeeRate      float64 `toml:"fee_rate"`
	SlippageRate float64 `toml:"slippage_rate"`
	// ContractMultipliers maps symbol to contract size multiplier. Symbols
	// not listed default to 1.
	ContractMultipliers map[string]float64 `toml:"contract_multipliers"`
	DefaultLeverage     int                `toml:"default_leverage"`
}

// Monitor holds the shared scheduling parameters of the three risk monitors.
type Monitor struct {
	Interval          duration `toml:"interval"`
	MaxConcurrent     int      `toml:"max_concurrent"`
	OrderPollAttempts int      `toml:"order_poll_attempts"`
	OrderPollBackoff  duration `toml:"order_poll_backoff"`
	LockTTL           duration `toml:"lock_ttl"`
	// MaxStaleness bounds how long a triggered position may stay open (or a
	// symbol may go unpriced) before a high-severity alert is raised.
	MaxStaleness duration `toml:"max_staleness"`

	StopLossEnabled      bool `toml:"stop_loss_enabled"`
	TrailingStopEnabled  bool `toml:"trailing_stop_enabled"`
	PartialProfitEnabled bool `toml:"partial_profit_enabled"`

	ReconcileInterval duration `toml:"reconcile_interval"`
}

// TrailingLevel is one trailing-stop tier: once peak PnL% reaches Trigger the
// tier arms, and the position closes when current PnL% falls to StopAt.
type TrailingLevel struct {
	Trigger float64 `toml:"trigger"`
	StopAt  float64 `toml:"stop_at"`
}

// PartialStage is one staged take-profit milestone: when PnL% reaches Trigger
// the position is reduced until ClosePercent of the original size has been
// closed cumulatively.
type PartialStage struct {
	Trigger      float64 `toml:"trigger"`
	ClosePercent float64 `toml:"close_percent"`
}

// StopLoss holds the per-leverage-bracket stop thresholds, all negative
// leveraged PnL percentages.
type StopLoss struct {
	Low  float64 `toml:"low"`
	Mid  float64 `toml:"mid"`
	High float64 `toml:"high"`
}

// Risk is the strategy risk profile consumed by the rule set. It is a typed
// struct, validated exhaustively at load time; ill-ordered values are
// rejected rather than silently defaulted inside the monitors.
type Risk struct {
	LeverageMin int      `toml:"leverage_min"`
	LeverageMax int      `toml:"leverage_max"`
	StopLoss    StopLoss `toml:"stop_loss"`

	TrailingLevel1 TrailingLevel `toml:"trailing_level1"`
	TrailingLevel2 TrailingLevel `toml:"trailing_level2"`
	TrailingLevel3 TrailingLevel `toml:"trailing_level3"`

	PartialStage1 PartialStage `toml:"partial_stage1"`
	PartialStage2 PartialStage `toml:"partial_stage2"`
	PartialStage3 PartialStage `toml:"partial_stage3"`
}

// Notify holds notification channel credentials.
type Notify struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "10s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
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
func Defaults() Config {
	return Config{
		Postgres: Postgres{
			Host:          "localhost",
			Port:          5432,
			Database:      "futguard",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: Redis{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "futguard-archive",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Ledger: Ledger{
			InitialBalance:      10_000,
			BufferRatio:         0.005,
			FeeRate:             0.0005,
			SlippageRate:        0.001,
			ContractMultipliers: map[string]float64{},
			DefaultLeverage:     5,
		},
		Monitor: Monitor{
			Interval:             duration{10 * time.Second},
			MaxConcurrent:        8,
			OrderPollAttempts:    5,
			OrderPollBackoff:     duration{1 * time.Second},
			LockTTL:              duration{30 * time.Second},
			MaxStaleness:         duration{2 * time.Minute},
			StopLossEnabled:      true,
			TrailingStopEnabled:  true,
			PartialProfitEnabled: true,
			ReconcileInterval:    duration{1 * time.Minute},
		},
		Risk: Risk{
			LeverageMin: 1,
			LeverageMax: 20,
			StopLoss:    StopLoss{Low: -10, Mid: -15, High: -20},

			TrailingLevel1: TrailingLevel{Trigger: 10, StopAt: 4},
			TrailingLevel2: TrailingLevel{Trigger: 18, StopAt: 10},
			TrailingLevel3: TrailingLevel{Trigger: 30, StopAt: 18},

			PartialStage1: PartialStage{Trigger: 12, ClosePercent: 25},
			PartialStage2: PartialStage{Trigger: 25, ClosePercent: 50},
			PartialStage3: PartialStage{Trigger: 40, ClosePercent: 75},
		},
		Notify: Notify{
			Events: []string{"risk_breach", "close_failed", "stale_position", "error"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper":   true,
	"live":    true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var problems []string

	if !validModes[strings.ToLower(c.Mode)] {
		problems = append(problems, fmt.Sprintf("mode %q is not one of paper|live|monitor", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug|info|warn|error", c.LogLevel))
	}

	if strings.ToLower(c.Mode) == "live" && c.Exchange.BaseURL == "" {
		problems = append(problems, "exchange.base_url is required in live mode")
	}
	if len(c.Exchange.Symbols) == 0 && strings.ToLower(c.Mode) != "monitor" {
		problems = append(problems, "exchange.symbols must list at least one symbol")
	}

	if c.Ledger.InitialBalance < 0 {
		problems = append(problems, "ledger.initial_balance must be >= 0")
	}
	if c.Ledger.BufferRatio < 0 || c.Ledger.BufferRatio >= 1 {
		problems = append(problems, "ledger.buffer_ratio must be in [0, 1)")
	}
	if c.Ledger.FeeRate < 0 || c.Ledger.FeeRate >= 1 {
		problems = append(problems, "ledger.fee_rate must be in [0, 1)")
	}
	if c.Ledger.SlippageRate < 0 || c.Ledger.SlippageRate >= 1 {
		problems = append(problems, "ledger.slippage_rate must be in [0, 1)")
	}
	if c.Ledger.DefaultLeverage < 1 {
		problems = append(problems, "ledger.default_leverage must be >= 1")
	}
	for sym, mult := range c.Ledger.ContractMultipliers {
		if mult <= 0 {
			problems = append(problems, fmt.Sprintf("ledger.contract_multipliers[%s] must be > 0", sym))
		}
	}

	if c.Monitor.Interval.Duration <= 0 {
		problems = append(problems, "monitor.interval must be > 0")
	}
	if c.Monitor.MaxConcurrent < 1 {
		problems = append(problems, "monitor.max_concurrent must be >= 1")
	}
	if c.Monitor.OrderPollAttempts < 1 {
		problems = append(problems, "monitor.order_poll_attempts must be >= 1")
	}
	if c.Monitor.OrderPollBackoff.Duration <= 0 {
		problems = append(problems, "monitor.order_poll_backoff must be > 0")
	}
	if c.Monitor.LockTTL.Duration <= 0 {
		problems = append(problems, "monitor.lock_ttl must be > 0")
	}
	if c.Monitor.MaxStaleness.Duration <= 0 {
		problems = append(problems, "monitor.max_staleness must be > 0")
	}

	problems = append(problems, c.Risk.validate()...)

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			problems = append(problems, "s3.bucket is required when s3.enabled")
		}
		if c.S3.RetentionDays < 1 {
			problems = append(problems, "s3.retention_days must be >= 1")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// validate checks the risk profile: leverage bounds, negative stop-loss
// thresholds, and strictly ascending trailing tiers and take-profit stages.
func (r *Risk) validate() []string {
	var problems []string

	if r.LeverageMin < 1 {
		problems = append(problems, "risk.leverage_min must be >= 1")
	}
	if r.LeverageMax < r.LeverageMin {
		problems = append(problems, "risk.leverage_max must be >= risk.leverage_min")
	}

	if r.StopLoss.Low >= 0 {
		problems = append(problems, "risk.stop_loss.low must be negative")
	}
	if r.StopLoss.Mid >= 0 {
		problems = append(problems, "risk.stop_loss.mid must be negative")
	}
	if r.StopLoss.High >= 0 {
		problems = append(problems, "risk.stop_loss.high must be negative")
	}

	tiers := []TrailingLevel{r.TrailingLevel1, r.TrailingLevel2, r.TrailingLevel3}
	for i, t := range tiers {
		if t.Trigger <= 0 {
			problems = append(problems, fmt.Sprintf("risk.trailing_level%d.trigger must be > 0", i+1))
		}
		if t.StopAt >= t.Trigger {
			problems = append(problems, fmt.Sprintf("risk.trailing_level%d.stop_at must be below its trigger", i+1))
		}
		if i > 0 && (t.Trigger <= tiers[i-1].Trigger || t.StopAt <= tiers[i-1].StopAt) {
			problems = append(problems, fmt.Sprintf("risk.trailing_level%d must be strictly above level%d", i+1, i))
		}
	}

	stages := []PartialStage{r.PartialStage1, r.PartialStage2, r.PartialStage3}
	for i, s := range stages {
		if s.Trigger <= 0 {
			problems = append(problems, fmt.Sprintf("risk.partial_stage%d.trigger must be > 0", i+1))
		}
		if s.ClosePercent <= 0 || s.ClosePercent > 100 {
			problems = append(problems, fmt.Sprintf("risk.partial_stage%d.close_percent must be in (0, 100]", i+1))
		}
		if i > 0 && (s.Trigger <= stages[i-1].Trigger || s.ClosePercent <= stages[i-1].ClosePercent) {
			problems = append(problems, fmt.Sprintf("risk.partial_stage%d must be strictly above stage%d", i+1, i))
		}
	}

	return problems
}
