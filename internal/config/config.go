// Package config defines the top-level configuration for the unit
// coordinator and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HLBOT_* environment variables.
type Config struct {
	Exchange  ExchangeConfig  `toml:"exchange"`
	Allocator AllocatorConfig `toml:"allocator"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	LogFile   LogFileConfig   `toml:"log_file"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ExchangeConfig holds Hyperliquid endpoints and order parameters.
type ExchangeConfig struct {
	BaseURL        string   `toml:"base_url"`
	Network        string   `toml:"network"`
	RequestTimeout duration `toml:"request_timeout"`
	// Slippage is the fraction the limit price is shifted away from mid.
	Slippage float64 `toml:"slippage"`
	// Fees is the taker fee fraction used by the balance preflight.
	Fees             float64 `toml:"fees"`
	BalanceFloor     float64 `toml:"balance_floor"`
	TimeInForce      string  `toml:"time_in_force"`
	LeverageCross    bool    `toml:"leverage_cross"`
	CloseMaxAttempts int     `toml:"close_max_attempts"`
}

// AllocatorConfig holds the randomized size-split parameters.
type AllocatorConfig struct {
	MinWeight4 int `toml:"min_weight_4"`
	MinWeight6 int `toml:"min_weight_6"`
	FatMin     int `toml:"fat_min"`
	FatMax     int `toml:"fat_max"`
	// Seed fixes the random source when non-zero.
	Seed uint64 `toml:"seed"`
}

// ProxyConfig is the default proxy used by accounts that have none.
type ProxyConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Default returns the proxy as a domain value, or nil when no host is set.
func (p ProxyConfig) Default() *domain.ProxyConfig {
	if p.Host == "" {
		return nil
	}
	return &domain.ProxyConfig{
		Name:     "default",
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Username,
		Password: p.Password,
	}
}

// DatabaseConfig holds PostgreSQL connection parameters for the account
// registry.
type DatabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	// KeyPassword encrypts account API keys at rest.
	KeyPassword string `toml:"key_password"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is the allowed requests per minute per client; 0 disables it.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// LogFileConfig controls the rotating log file. An empty path disables it.
type LogFileConfig struct {
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL:          "https://api.hyperliquid.xyz",
			Network:          "mainnet",
			RequestTimeout:   duration{10 * time.Second},
			Slippage:         0.001,
			Fees:             0.000336,
			BalanceFloor:     0,
			TimeInForce:      string(domain.TifFrontendMarket),
			LeverageCross:    false,
			CloseMaxAttempts: 5,
		},
		Allocator: AllocatorConfig{
			MinWeight4: 20,
			MinWeight6: 10,
			FatMin:     40,
			FatMax:     60,
		},
		Database: DatabaseConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			LockTTL:    duration{2 * time.Minute},
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:1420", "tauri://localhost"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{
				string(domain.EventUnitRolledBack),
				string(domain.EventUnitCloseFail),
			},
		},
		LogFile: LogFileConfig{
			Path:       "logs.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"oneshot": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validTIF = map[string]bool{
	string(domain.TifGtc):            true,
	string(domain.TifIoc):            true,
	string(domain.TifAlo):            true,
	string(domain.TifFrontendMarket): true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, oneshot)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.Network != "mainnet" && c.Exchange.Network != "testnet" {
		errs = append(errs, fmt.Sprintf("exchange: network must be mainnet or testnet, got %q", c.Exchange.Network))
	}
	if c.Exchange.RequestTimeout.Duration <= 0 {
		errs = append(errs, "exchange: request_timeout must be > 0")
	}
	if c.Exchange.Slippage <= 0 || c.Exchange.Slippage >= 0.5 {
		errs = append(errs, "exchange: slippage must be in (0, 0.5)")
	}
	if c.Exchange.Fees < 0 || c.Exchange.Fees >= 0.1 {
		errs = append(errs, "exchange: fees must be in [0, 0.1)")
	}
	if c.Exchange.BalanceFloor < 0 {
		errs = append(errs, "exchange: balance_floor must be >= 0")
	}
	if !validTIF[c.Exchange.TimeInForce] {
		errs = append(errs, fmt.Sprintf("exchange: unknown time_in_force %q", c.Exchange.TimeInForce))
	}
	if c.Exchange.CloseMaxAttempts < 1 {
		errs = append(errs, "exchange: close_max_attempts must be >= 1")
	}

	// Allocator: the thin draws must leave a non-empty range.
	if c.Allocator.MinWeight4 < 1 || 3*c.Allocator.MinWeight4 >= 100 {
		errs = append(errs, "allocator: min_weight_4 must be in [1, 33]")
	}
	if c.Allocator.MinWeight6 < 1 || 4*c.Allocator.MinWeight6 >= 100 {
		errs = append(errs, "allocator: min_weight_6 must be in [1, 24]")
	}
	if c.Allocator.FatMin < 1 || c.Allocator.FatMin > c.Allocator.FatMax || c.Allocator.FatMin+c.Allocator.FatMax != 100 {
		errs = append(errs, "allocator: fat_min and fat_max must be ordered and sum to 100")
	}

	// Proxy
	if c.Proxy.Host != "" && (c.Proxy.Port <= 0 || c.Proxy.Port > 65535) {
		errs = append(errs, fmt.Sprintf("proxy: port must be 1-65535, got %d", c.Proxy.Port))
	}

	// Database
	if c.Database.Enabled {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must be in [0, pool_max_conns]")
		}
		if c.Database.KeyPassword == "" {
			errs = append(errs, "database: key_password is required to encrypt account keys")
		}
	} else if strings.ToLower(c.Mode) == "oneshot" {
		errs = append(errs, "database: must be enabled for oneshot mode (batches are loaded from it)")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be > 0")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
