// Command unitbot opens, closes and recreates hedged units across groups of
// Hyperliquid accounts. By default it serves the HTTP API; with -op it runs
// one operation on a stored batch and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/BeerCodeIndustry/hyperliquid/internal/app"
	"github.com/BeerCodeIndustry/hyperliquid/internal/config"
	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	op := flag.String("op", "", "run one operation and exit: create, close or recreate")
	batch := flag.String("batch", "", "batch id for -op")
	asset := flag.String("asset", "", "asset for -op, e.g. ETH")
	size := flag.String("size", "", "unit size in base units for -op create/recreate")
	leverage := flag.Int("leverage", 1, "leverage for -op create/recreate")
	sizeDecimals := flag.Int("size-decimals", 0, "size decimals of the asset")
	smart := flag.Bool("smart-balance", false, "give the largest shares to the richest accounts")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *op != "" {
		cfg.Mode = "oneshot"
	}

	out, closeLog := logOutput(cfg.LogFile)
	defer closeLog()
	logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("unit bot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	if cfg.Mode == "oneshot" {
		unit := domain.Unit{
			Asset:             strings.TrimSpace(*asset),
			Leverage:          *leverage,
			SizePrecision:     int32(*sizeDecimals),
			SmartBalanceUsage: *smart,
		}
		if *size != "" {
			if unit.Size, err = decimal.NewFromString(*size); err != nil {
				logger.Error("invalid -size", slog.String("error", err.Error()))
				os.Exit(2)
			}
		}
		application.WithOneShot(app.OneShot{Op: *op, BatchID: *batch, Unit: unit})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("unit bot stopped")
}

// logOutput returns stdout, teed into a rotating file when a path is set.
func logOutput(lf config.LogFileConfig) (io.Writer, func()) {
	if lf.Path == "" {
		return os.Stdout, func() {}
	}
	file := &lumberjack.Logger{
		Filename:   lf.Path,
		MaxSize:    lf.MaxSizeMB,
		MaxBackups: lf.MaxBackups,
		MaxAge:     lf.MaxAgeDays,
		Compress:   lf.Compress,
	}
	return io.MultiWriter(os.Stdout, file), func() { _ = file.Close() }
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
