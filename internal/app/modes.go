package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BeerCodeIndustry/hyperliquid/internal/executor"
	"github.com/BeerCodeIndustry/hyperliquid/internal/server"
	"github.com/BeerCodeIndustry/hyperliquid/internal/server/handler"
	"github.com/BeerCodeIndustry/hyperliquid/internal/server/ws"
)

// ServerMode serves the HTTP API and the WebSocket event stream until ctx
// is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Pingers, a.logger),
		Units:  handler.NewUnitHandler(deps.Units, a.logger),
	}
	if deps.Accounts != nil {
		handlers.Accounts = handler.NewAccountHandler(deps.Accounts, a.logger)
	} else {
		a.logger.InfoContext(ctx, "database disabled; registry and batch endpoints are off")
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// OneShotMode runs a single operation on a stored batch and returns its
// error.
func (a *App) OneShotMode(ctx context.Context, deps *Dependencies) error {
	op, err := parseOp(a.oneShot.Op)
	if err != nil {
		return err
	}
	if a.oneShot.BatchID == "" {
		return fmt.Errorf("app: oneshot %s: batch id is required", op)
	}
	unit := a.oneShot.Unit
	log := a.logger.With(
		slog.String("op", op),
		slog.String("batch", a.oneShot.BatchID),
		slog.String("asset", unit.Asset),
	)
	log.InfoContext(ctx, "running oneshot operation")

	var res executor.UnitResult
	switch op {
	case "create":
		res, err = deps.Units.CreateBatchUnit(ctx, a.oneShot.BatchID, unit)
	case "close":
		err = deps.Units.CloseBatchUnit(ctx, a.oneShot.BatchID, unit.Asset)
	case "recreate":
		res, err = deps.Units.RecreateBatchUnit(ctx, a.oneShot.BatchID, unit)
	}
	if err != nil {
		return fmt.Errorf("app: oneshot %s: %w", op, err)
	}

	for _, leg := range res.Legs {
		log.InfoContext(ctx, "leg",
			slog.String("account", leg.Account),
			slog.String("state", string(leg.State)),
			slog.String("filled", leg.FilledSize.String()),
		)
	}
	log.InfoContext(ctx, "oneshot operation done")
	return nil
}
