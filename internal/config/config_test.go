package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Exchange.Symbols = []string{"BTCUSDT"}
	return cfg
}

func TestDefaultsValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantSub string
	}{
		{"bad mode", func(c *Config) { c.Mode = "backtest" }, "mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"live needs base url", func(c *Config) { c.Mode = "live"; c.Exchange.BaseURL = "" }, "base_url"},
		{"no symbols", func(c *Config) { c.Exchange.Symbols = nil }, "symbols"},
		{"negative balance", func(c *Config) { c.Ledger.InitialBalance = -1 }, "initial_balance"},
		{"buffer out of range", func(c *Config) { c.Ledger.BufferRatio = 1 }, "buffer_ratio"},
		{"zero interval", func(c *Config) { c.Monitor.Interval = duration{} }, "monitor.interval"},
		{"zero poll attempts", func(c *Config) { c.Monitor.OrderPollAttempts = 0 }, "order_poll_attempts"},
		{"zero staleness", func(c *Config) { c.Monitor.MaxStaleness = duration{} }, "max_staleness"},
		{"s3 without bucket", func(c *Config) { c.S3.Enabled = true; c.S3.Bucket = "" }, "s3.bucket"},
		{"leverage inverted", func(c *Config) { c.Risk.LeverageMin = 10; c.Risk.LeverageMax = 5 }, "leverage_max"},
		{"positive stop loss", func(c *Config) { c.Risk.StopLoss.Mid = 5 }, "stop_loss.mid"},
		{"trailing stop above trigger", func(c *Config) { c.Risk.TrailingLevel1.StopAt = 99 }, "trailing_level1"},
		{"trailing tiers unordered", func(c *Config) { c.Risk.TrailingLevel2.Trigger = c.Risk.TrailingLevel1.Trigger }, "trailing_level2"},
		{"stage percent over 100", func(c *Config) { c.Risk.PartialStage3.ClosePercent = 120 }, "partial_stage3"},
		{"stages unordered", func(c *Config) { c.Risk.PartialStage2.ClosePercent = c.Risk.PartialStage1.ClosePercent }, "partial_stage2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "nope"
	cfg.Ledger.InitialBalance = -5
	cfg.Monitor.MaxConcurrent = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected a validation error")
	}
	for _, sub := range []string{"mode", "initial_balance", "max_concurrent"} {
		if !strings.Contains(err.Error(), sub) {
			t.Errorf("error %q missing %q", err, sub)
		}
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "futguard.toml")
	body := `
mode = "monitor"

[exchange]
symbols = ["ETHUSDT", "BTCUSDT"]

[monitor]
interval = "3s"
max_concurrent = 4

[risk.stop_loss]
low = -8.0
mid = -12.0
high = -16.0
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "monitor" {
		t.Errorf("mode = %q, want monitor", cfg.Mode)
	}
	if cfg.Monitor.Interval.Duration != 3*time.Second {
		t.Errorf("interval = %v, want 3s", cfg.Monitor.Interval.Duration)
	}
	if cfg.Monitor.MaxConcurrent != 4 {
		t.Errorf("max_concurrent = %d, want 4", cfg.Monitor.MaxConcurrent)
	}
	if cfg.Risk.StopLoss.Low != -8 {
		t.Errorf("stop_loss.low = %f, want -8", cfg.Risk.StopLoss.Low)
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("postgres.port = %d, want default 5432", cfg.Postgres.Port)
	}
	if !cfg.Monitor.StopLossEnabled {
		t.Error("stop_loss_enabled should default to true")
	}
	if len(cfg.Exchange.Symbols) != 2 {
		t.Errorf("symbols = %v", cfg.Exchange.Symbols)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("FUTGUARD_MODE", "live")
	t.Setenv("FUTGUARD_EXCHANGE_API_KEY", "key-from-env")
	t.Setenv("FUTGUARD_EXCHANGE_SYMBOLS", "BTCUSDT, SOLUSDT ,")
	t.Setenv("FUTGUARD_MONITOR_INTERVAL", "7s")
	t.Setenv("FUTGUARD_POSTGRES_PORT", "6543")
	t.Setenv("FUTGUARD_MONITOR_PARTIAL_PROFIT_ENABLED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "live" {
		t.Errorf("mode = %q, want live", cfg.Mode)
	}
	if cfg.Exchange.APIKey != "key-from-env" {
		t.Errorf("api key = %q", cfg.Exchange.APIKey)
	}
	want := []string{"BTCUSDT", "SOLUSDT"}
	if len(cfg.Exchange.Symbols) != len(want) {
		t.Fatalf("symbols = %v, want %v", cfg.Exchange.Symbols, want)
	}
	for i := range want {
		if cfg.Exchange.Symbols[i] != want[i] {
			t.Errorf("symbols[%d] = %q, want %q", i, cfg.Exchange.Symbols[i], want[i])
		}
	}
	if cfg.Monitor.Interval.Duration != 7*time.Second {
		t.Errorf("interval = %v, want 7s", cfg.Monitor.Interval.Duration)
	}
	if cfg.Postgres.Port != 6543 {
		t.Errorf("postgres.port = %d, want 6543", cfg.Postgres.Port)
	}
	if cfg.Monitor.PartialProfitEnabled {
		t.Error("partial_profit_enabled should be overridden to false")
	}
}

func TestDurationTextRoundTrip(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("duration = %v, want 90s", d.Duration)
	}
	out, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(out) != "1m30s" {
		t.Errorf("marshal = %q, want 1m30s", out)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected an error for a malformed duration")
	}
}
