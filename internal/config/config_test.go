package config

import (
	"os"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	content := `
agent:
  cycle_interval: 30s
  crypto_watchlist:
    - BTC
    - ETH
  stock_watchlist:
    - AAPL
  sentiment_topic: "crypto market momentum"
  spread_threshold: 0.05

storage:
  graph_db_path: "./data/test-graph.db"
  ledger_db_path: "./data/test-ledger.db"
  max_events: 1000

telegram:
  enabled: true
  bot_token: "test_token"
  chat_id: "12345"

logging:
  level: "info"
  format: "json"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Agent.CycleInterval != 30*time.Second {
		t.Errorf("Unexpected cycle interval: %v", cfg.Agent.CycleInterval)
	}
	if len(cfg.Agent.CryptoWatchlist) != 2 {
		t.Errorf("Expected 2 crypto symbols, got %d", len(cfg.Agent.CryptoWatchlist))
	}
	if cfg.Agent.SpreadThreshold != 0.05 {
		t.Errorf("Unexpected spread threshold: %f", cfg.Agent.SpreadThreshold)
	}
	if !cfg.Telegram.Enabled {
		t.Error("Expected telegram to be enabled")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	// Minimal file; everything else comes from defaults.
	cfg, err := Load(writeTempConfig(t, "logging:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Agent.CycleInterval != 30*time.Second {
		t.Errorf("Expected default cycle interval 30s, got %v", cfg.Agent.CycleInterval)
	}
	if cfg.Agent.FailureBackoff != 5*time.Second {
		t.Errorf("Expected default failure backoff 5s, got %v", cfg.Agent.FailureBackoff)
	}
	if len(cfg.Agent.CryptoWatchlist) != 4 {
		t.Errorf("Expected 4 default crypto symbols, got %d", len(cfg.Agent.CryptoWatchlist))
	}
	if len(cfg.Agent.StockWatchlist) != 5 {
		t.Errorf("Expected 5 default stock symbols, got %d", len(cfg.Agent.StockWatchlist))
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected level from file, got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"cycle interval too short", func(c *Config) { c.Agent.CycleInterval = 100 * time.Millisecond }},
		{"zero backoff", func(c *Config) { c.Agent.FailureBackoff = 0 }},
		{"zero call timeout", func(c *Config) { c.Agent.CallTimeout = 0 }},
		{"empty crypto watchlist", func(c *Config) { c.Agent.CryptoWatchlist = nil }},
		{"negative spread threshold", func(c *Config) { c.Agent.SpreadThreshold = -1 }},
		{"zero lookback", func(c *Config) { c.Agent.LookbackDays = 0 }},
		{"zero max events", func(c *Config) { c.Storage.MaxEvents = 0 }},
		{"missing graph db path", func(c *Config) { c.Storage.GraphDBPath = "" }},
		{"missing ledger db path", func(c *Config) { c.Storage.LedgerDBPath = "" }},
		{"telegram enabled without token", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = ""
		}},
		{"empty server addr", func(c *Config) { c.Server.Addr = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}
