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
// built-in defaults, applies HLBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known HLBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "HLBOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.Network, "HLBOT_EXCHANGE_NETWORK")
	setDuration(&cfg.Exchange.RequestTimeout, "HLBOT_EXCHANGE_REQUEST_TIMEOUT")
	setFloat64(&cfg.Exchange.Slippage, "HLBOT_EXCHANGE_SLIPPAGE")
	setFloat64(&cfg.Exchange.Fees, "HLBOT_EXCHANGE_FEES")
	setFloat64(&cfg.Exchange.BalanceFloor, "HLBOT_EXCHANGE_BALANCE_FLOOR")
	setStr(&cfg.Exchange.TimeInForce, "HLBOT_EXCHANGE_TIME_IN_FORCE")
	setBool(&cfg.Exchange.LeverageCross, "HLBOT_EXCHANGE_LEVERAGE_CROSS")
	setInt(&cfg.Exchange.CloseMaxAttempts, "HLBOT_EXCHANGE_CLOSE_MAX_ATTEMPTS")

	// ── Allocator ──
	setInt(&cfg.Allocator.MinWeight4, "HLBOT_ALLOCATOR_MIN_WEIGHT_4")
	setInt(&cfg.Allocator.MinWeight6, "HLBOT_ALLOCATOR_MIN_WEIGHT_6")
	setInt(&cfg.Allocator.FatMin, "HLBOT_ALLOCATOR_FAT_MIN")
	setInt(&cfg.Allocator.FatMax, "HLBOT_ALLOCATOR_FAT_MAX")
	setUint64(&cfg.Allocator.Seed, "HLBOT_ALLOCATOR_SEED")

	// ── Default proxy ──
	setStr(&cfg.Proxy.Host, "HLBOT_PROXY_HOST")
	setInt(&cfg.Proxy.Port, "HLBOT_PROXY_PORT")
	setStr(&cfg.Proxy.Username, "HLBOT_PROXY_USERNAME")
	setStr(&cfg.Proxy.Password, "HLBOT_PROXY_PASSWORD")

	// ── Database ──
	setBool(&cfg.Database.Enabled, "HLBOT_DATABASE_ENABLED")
	setStr(&cfg.Database.DSN, "HLBOT_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "HLBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "HLBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "HLBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "HLBOT_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "HLBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "HLBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "HLBOT_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "HLBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "HLBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "HLBOT_DATABASE_RUN_MIGRATIONS")
	setStr(&cfg.Database.KeyPassword, "HLBOT_DATABASE_KEY_PASSWORD")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "HLBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HLBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HLBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HLBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HLBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HLBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HLBOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "HLBOT_REDIS_LOCK_TTL")

	// ── Server ──
	setInt(&cfg.Server.Port, "HLBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HLBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "HLBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "HLBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HLBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HLBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HLBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HLBOT_NOTIFY_EVENTS")

	// ── Log file ──
	setStr(&cfg.LogFile.Path, "HLBOT_LOG_FILE_PATH")
	setInt(&cfg.LogFile.MaxSizeMB, "HLBOT_LOG_FILE_MAX_SIZE_MB")

	// ── Top-level ──
	setStr(&cfg.Mode, "HLBOT_MODE")
	setStr(&cfg.LogLevel, "HLBOT_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
