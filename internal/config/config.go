// Package config loads and validates the agent configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AgentConfig holds cycle behavior configuration.
type AgentConfig struct {
	CycleInterval   time.Duration `mapstructure:"cycle_interval"`
	FailureBackoff  time.Duration `mapstructure:"failure_backoff"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	CryptoWatchlist []string      `mapstructure:"crypto_watchlist"`
	StockWatchlist  []string      `mapstructure:"stock_watchlist"`
	SentimentTopic  string        `mapstructure:"sentiment_topic"`
	NewsCategory    string        `mapstructure:"news_category"`
	SpreadThreshold float64       `mapstructure:"spread_threshold"` // percent
	PatternSymbols  int           `mapstructure:"pattern_symbols"`
	LookbackDays    int           `mapstructure:"lookback_days"`
	Seed            int64         `mapstructure:"seed"` // 0 = time-based
}

// StorageConfig holds SQLite persistence configuration.
type StorageConfig struct {
	GraphDBPath  string `mapstructure:"graph_db_path"`
	LedgerDBPath string `mapstructure:"ledger_db_path"`
	MaxEvents    int    `mapstructure:"max_events"`
}

// TelegramConfig holds Telegram alerting configuration.
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	PerMinute      int           `mapstructure:"per_minute"`
}

// ServerConfig holds the HTTP control surface configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("ARBAGENT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration populated with defaults only, without
// touching the filesystem. Used by tests and the on-demand CLI path.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Agent defaults
	v.SetDefault("agent.cycle_interval", "30s")
	v.SetDefault("agent.failure_backoff", "5s")
	v.SetDefault("agent.call_timeout", "10s")
	v.SetDefault("agent.crypto_watchlist", []string{"BTC", "ETH", "SOL", "DOGE"})
	v.SetDefault("agent.stock_watchlist", []string{"AAPL", "TSLA", "NVDA", "SPY", "DJT"})
	v.SetDefault("agent.sentiment_topic", "crypto market momentum")
	v.SetDefault("agent.news_category", "crypto")
	v.SetDefault("agent.spread_threshold", 0.05)
	v.SetDefault("agent.pattern_symbols", 2)
	v.SetDefault("agent.lookback_days", 30)
	v.SetDefault("agent.seed", 0)

	// Storage defaults
	v.SetDefault("storage.graph_db_path", "./data/graph.db")
	v.SetDefault("storage.ledger_db_path", "./data/ledger.db")
	v.SetDefault("storage.max_events", 10000)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.per_minute", 20)

	// Server defaults
	v.SetDefault("server.addr", ":8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Agent.CycleInterval < time.Second {
		return fmt.Errorf("agent.cycle_interval must be at least 1 second")
	}
	if c.Agent.FailureBackoff <= 0 {
		return fmt.Errorf("agent.failure_backoff must be positive")
	}
	if c.Agent.CallTimeout <= 0 {
		return fmt.Errorf("agent.call_timeout must be positive")
	}
	if len(c.Agent.CryptoWatchlist) == 0 {
		return fmt.Errorf("agent.crypto_watchlist must contain at least one symbol")
	}
	if c.Agent.SpreadThreshold < 0 {
		return fmt.Errorf("agent.spread_threshold must not be negative")
	}
	if c.Agent.PatternSymbols < 0 {
		return fmt.Errorf("agent.pattern_symbols must not be negative")
	}
	if c.Agent.LookbackDays < 1 {
		return fmt.Errorf("agent.lookback_days must be at least 1")
	}

	if c.Storage.MaxEvents < 1 {
		return fmt.Errorf("storage.max_events must be at least 1")
	}
	if c.Storage.GraphDBPath == "" {
		return fmt.Errorf("storage.graph_db_path is required")
	}
	if c.Storage.LedgerDBPath == "" {
		return fmt.Errorf("storage.ledger_db_path is required")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.PerMinute < 1 {
			return fmt.Errorf("telegram.per_minute must be at least 1")
		}
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
