package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/BeerCodeIndustry/hyperliquid/internal/allocator"
	"github.com/BeerCodeIndustry/hyperliquid/internal/cache/memory"
	"github.com/BeerCodeIndustry/hyperliquid/internal/cache/redis"
	"github.com/BeerCodeIndustry/hyperliquid/internal/config"
	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
	"github.com/BeerCodeIndustry/hyperliquid/internal/executor"
	"github.com/BeerCodeIndustry/hyperliquid/internal/notify"
	"github.com/BeerCodeIndustry/hyperliquid/internal/platform/hyperliquid"
	"github.com/BeerCodeIndustry/hyperliquid/internal/server/handler"
	"github.com/BeerCodeIndustry/hyperliquid/internal/service"
	"github.com/BeerCodeIndustry/hyperliquid/internal/store/postgres"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Factory     *hyperliquid.Factory
	Market      domain.MarketData
	Coordinator *executor.Coordinator

	// Guard is distributed when Redis is enabled, in-process otherwise.
	Guard       domain.UnitGuard
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter // nil without Redis

	// Registry; nil when the database is disabled.
	AccountStore domain.AccountStore
	ProxyStore   domain.ProxyStore
	BatchStore   domain.BatchStore
	Accounts     *service.AccountService

	Units    *service.UnitService
	Notifier *notify.Notifier

	// Pingers are probed by the health check.
	Pingers map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from cfg and
// returns them together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Pingers: make(map[string]handler.Pinger)}

	// --- Exchange ---
	deps.Factory = hyperliquid.NewFactory(hyperliquid.FactoryConfig{
		BaseURL:      cfg.Exchange.BaseURL,
		Timeout:      cfg.Exchange.RequestTimeout.Duration,
		Mainnet:      cfg.Exchange.Network == "mainnet",
		DefaultProxy: cfg.Proxy.Default(),
	}, logger)
	closers = append(closers, deps.Factory.Close)
	deps.Market = deps.Factory.MarketData()

	legs := executor.NewLegExecutor(legConfig(cfg.Exchange), logger)
	deps.Coordinator = executor.NewCoordinator(deps.Factory, legs, newAllocator(cfg.Allocator), logger)

	// --- PostgreSQL registry ---
	if cfg.Database.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.AccountStore = postgres.NewAccountStore(pool)
		deps.ProxyStore = postgres.NewProxyStore(pool)
		deps.BatchStore = postgres.NewBatchStore(pool)
		deps.Accounts = service.NewAccountService(
			deps.AccountStore, deps.ProxyStore, deps.BatchStore,
			cfg.Database.KeyPassword, logger,
		)
		deps.Pingers["postgres"] = pgClient
	}

	// --- Redis, or in-process fallbacks ---
	if cfg.Redis.Enabled {
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

		deps.Guard = executor.NewLockGuard(redis.NewLockManager(redisClient), cfg.Redis.LockTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Pingers["redis"] = redisClient
	} else {
		deps.Guard = executor.NewLocalGuard()
		deps.SignalBus = memory.NewSignalBus()
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

	// A nil *AccountService must not reach the interface.
	var resolver service.BatchResolver
	if deps.Accounts != nil {
		resolver = deps.Accounts
	}
	deps.Units = service.NewUnitService(
		deps.Coordinator, deps.Market, deps.Guard,
		deps.SignalBus, deps.Notifier, resolver, logger,
	)

	return deps, cleanup, nil
}

func legConfig(ex config.ExchangeConfig) executor.LegConfig {
	return executor.LegConfig{
		Slippage:         decimal.NewFromFloat(ex.Slippage),
		Fees:             decimal.NewFromFloat(ex.Fees),
		BalanceFloor:     decimal.NewFromFloat(ex.BalanceFloor),
		TimeInForce:      domain.TimeInForce(ex.TimeInForce),
		LeverageCross:    ex.LeverageCross,
		CloseMaxAttempts: ex.CloseMaxAttempts,
		CallTimeout:      ex.RequestTimeout.Duration,
	}
}

func newAllocator(c config.AllocatorConfig) *allocator.Allocator {
	ac := allocator.Config{
		MinWeight4: c.MinWeight4,
		MinWeight6: c.MinWeight6,
		FatMin:     c.FatMin,
		FatMax:     c.FatMax,
	}
	if c.Seed != 0 {
		return allocator.NewSeeded(ac, c.Seed)
	}
	return allocator.New(ac, nil)
}

// parseOp normalises a oneshot operation name.
func parseOp(op string) (string, error) {
	switch op = strings.ToLower(strings.TrimSpace(op)); op {
	case "create", "close", "recreate":
		return op, nil
	default:
		return "", fmt.Errorf("app: unknown operation %q (valid: create, close, recreate)", op)
	}
}
