package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/BeerCodeIndustry/hyperliquid/internal/allocator"
	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
	"github.com/BeerCodeIndustry/hyperliquid/internal/metrics"
	"github.com/BeerCodeIndustry/hyperliquid/internal/numeric"
)

// UnitResult describes a finished create.
type UnitResult struct {
	Asset string
	Plan  domain.AllocationPlan
	Legs  []domain.LegOutcome
}

// Coordinator opens, closes and recreates units across a group of accounts.
// Every phase runs one goroutine per account and waits for all of them
// before the next phase starts.
type Coordinator struct {
	factory domain.GatewayFactory
	legs    *LegExecutor
	alloc   *allocator.Allocator
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(factory domain.GatewayFactory, legs *LegExecutor, alloc *allocator.Allocator, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		factory: factory,
		legs:    legs,
		alloc:   alloc,
		logger:  logger.With(slog.String("component", "coordinator")),
	}
}

// CreateUnit opens unit across accounts. Nothing is ordered unless every
// account passes the balance and position preflight. If any leg fails the
// whole group is closed again and the first leg error is returned.
func (c *Coordinator) CreateUnit(ctx context.Context, accounts []domain.AccountConfig, unit domain.Unit) (UnitResult, error) {
	if err := unit.Validate(); err != nil {
		return UnitResult{}, err
	}
	n := len(accounts)
	if n != 2 && n != 4 && n != 6 {
		return UnitResult{}, fmt.Errorf("executor: %d accounts: %w", n, domain.ErrInvalidGroupSize)
	}
	if err := distinct(accounts); err != nil {
		return UnitResult{}, err
	}
	asset := unit.Asset
	log := c.logger.With(slog.String("asset", asset), slog.Int("accounts", n))

	gws, closeAll, err := c.open(ctx, accounts, asset)
	if err != nil {
		return UnitResult{}, err
	}
	defer closeAll()

	total := unit.LeveragedSize()

	// Balance preflight against the full notional, before allocation.
	if err := combine(c.parallel(ctx, asset, gws, func(ctx context.Context, _ int, gw domain.ExchangeGateway) error {
		return c.legs.CheckBalance(ctx, gw, asset, total, unit.Leverage)
	})); err != nil {
		log.Warn("balance preflight failed", slog.String("error", err.Error()))
		return UnitResult{}, err
	}

	c.parallel(ctx, asset, gws, func(ctx context.Context, _ int, gw domain.ExchangeGateway) error {
		c.legs.SyncLeverage(ctx, gw, asset, unit.Leverage)
		return nil
	})

	if err := combine(c.parallel(ctx, asset, gws, func(ctx context.Context, _ int, gw domain.ExchangeGateway) error {
		return c.legs.CheckNoPosition(ctx, gw, asset)
	})); err != nil {
		log.Warn("position preflight failed", slog.String("error", err.Error()))
		return UnitResult{}, err
	}

	plan, err := c.plan(ctx, gws, unit)
	if err != nil {
		return UnitResult{}, err
	}

	sizes := make([]decimal.Decimal, n)
	for i, slot := range plan.Slots {
		sizes[i] = numeric.RoundSize(total.Mul(decimal.NewFromInt(int64(slot.WeightPercent))).Div(decimal.NewFromInt(100)), unit.SizePrecision)
		if !sizes[i].IsPositive() {
			return UnitResult{}, fmt.Errorf("%w: leg %d size rounds to zero at %d decimals", domain.ErrInvalidUnit, i, unit.SizePrecision)
		}
	}
	log.Info("allocation drawn",
		slog.Any("weights", weights(plan)),
		slog.Bool("fat_is_buy", plan.FatIsBuy),
		slog.Bool("smart_balance", unit.SmartBalanceUsage),
	)

	result := UnitResult{Asset: asset, Plan: plan, Legs: make([]domain.LegOutcome, n)}
	legErrs := c.parallel(ctx, asset, gws, func(ctx context.Context, i int, gw domain.ExchangeGateway) error {
		result.Legs[i] = c.legs.RunCreateLeg(ctx, gw, asset, sizes[i], unit.Leverage, plan.IsBuy(i))
		return result.Legs[i].Err
	})
	for i, err := range legErrs {
		if err != nil && result.Legs[i].Err == nil {
			result.Legs[i] = domain.LegOutcome{Account: gws[i].Address(), RequestedSize: sizes[i], State: domain.LegFailed, Err: err}
		}
	}

	legErr := firstErr(legErrs)
	if legErr == nil {
		log.Info("unit created")
		return result, nil
	}

	for i, err := range legErrs {
		if err != nil {
			log.Error("leg failed", slog.String("account", gws[i].Address()), slog.String("error", err.Error()))
		}
	}
	log.Warn("rolling back unit")

	// The group is closed even if the caller has gone away.
	if rbErr := c.closeGroup(context.WithoutCancel(ctx), gws, asset); rbErr != nil {
		metrics.Rollbacks.WithLabelValues("incomplete").Inc()
		log.Error("rollback incomplete", slog.String("error", rbErr.Error()))
		return result, errors.Join(legErr, fmt.Errorf("rollback: %w", rbErr))
	}
	metrics.Rollbacks.WithLabelValues("ok").Inc()
	return result, legErr
}

// CloseUnit closes every account's position in asset. Accounts without a
// position succeed without placing an order.
func (c *Coordinator) CloseUnit(ctx context.Context, accounts []domain.AccountConfig, asset string) error {
	if asset == "" {
		return fmt.Errorf("%w: asset is required", domain.ErrInvalidUnit)
	}
	if len(accounts) == 0 {
		return fmt.Errorf("executor: no accounts: %w", domain.ErrInvalidGroupSize)
	}
	if err := distinct(accounts); err != nil {
		return err
	}
	gws, closeAll, err := c.open(ctx, accounts, asset)
	if err != nil {
		return err
	}
	defer closeAll()

	if err := c.closeGroup(ctx, gws, asset); err != nil {
		c.logger.Error("close unit failed", slog.String("asset", asset), slog.String("error", err.Error()))
		return err
	}
	c.logger.Info("unit closed", slog.String("asset", asset), slog.Int("accounts", len(gws)))
	return nil
}

// CloseAndCreateUnit closes the group's position in unit.Asset and opens
// unit again. A failed close is returned as is and nothing is opened.
func (c *Coordinator) CloseAndCreateUnit(ctx context.Context, accounts []domain.AccountConfig, unit domain.Unit) (UnitResult, error) {
	if err := c.CloseUnit(ctx, accounts, unit.Asset); err != nil {
		return UnitResult{}, err
	}
	return c.CreateUnit(ctx, accounts, unit)
}

// GroupStates returns every account's state, queried in parallel.
func (c *Coordinator) GroupStates(ctx context.Context, accounts []domain.AccountConfig) ([]domain.AccountState, error) {
	gws, closeAll, err := c.open(ctx, accounts, "")
	if err != nil {
		return nil, err
	}
	defer closeAll()

	states := make([]domain.AccountState, len(gws))
	errs := c.parallel(ctx, "", gws, func(ctx context.Context, i int, gw domain.ExchangeGateway) error {
		cctx, cancel := c.legs.callCtx(ctx)
		defer cancel()
		st, err := gw.State(cctx)
		metrics.ObserveCall("state", err)
		if err != nil {
			return fmt.Errorf("executor: state of %s: %w", gw.Address(), err)
		}
		st.Name = accounts[i].Name
		states[i] = st
		return nil
	})
	if err := firstErr(errs); err != nil {
		return nil, err
	}
	return states, nil
}

func (c *Coordinator) closeGroup(ctx context.Context, gws []domain.ExchangeGateway, asset string) error {
	return combine(c.parallel(ctx, asset, gws, func(ctx context.Context, _ int, gw domain.ExchangeGateway) error {
		return c.legs.RunCloseLeg(ctx, gw, asset)
	}))
}

// plan draws the allocation. Smart balance ordering needs fresh balances.
func (c *Coordinator) plan(ctx context.Context, gws []domain.ExchangeGateway, unit domain.Unit) (domain.AllocationPlan, error) {
	var balances []decimal.Decimal
	if unit.SmartBalanceUsage && len(gws) > 2 {
		balances = make([]decimal.Decimal, len(gws))
		err := combine(c.parallel(ctx, unit.Asset, gws, func(ctx context.Context, i int, gw domain.ExchangeGateway) error {
			b, err := c.legs.balance(ctx, gw)
			if err != nil {
				return rejected(gw, unit.Asset, "balance query failed", err)
			}
			balances[i] = b
			return nil
		}))
		if err != nil {
			return domain.AllocationPlan{}, err
		}
	}
	return c.alloc.Allocate(len(gws), unit.SmartBalanceUsage, balances)
}

// open resolves one gateway per account in parallel. Any failure closes the
// gateways already opened and fails the call before any exchange request.
func (c *Coordinator) open(ctx context.Context, accounts []domain.AccountConfig, asset string) ([]domain.ExchangeGateway, func(), error) {
	gws := make([]domain.ExchangeGateway, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	for i, acc := range accounts {
		g.Go(func() error {
			gw, err := c.factory.Open(gctx, acc)
			if err != nil {
				return domain.NewUnitError(domain.KindHandlerInitFailed, asset, "", err, acc.Label())
			}
			gws[i] = gw
			return nil
		})
	}
	closeAll := func() {
		for _, gw := range gws {
			if gw != nil {
				gw.Close()
			}
		}
	}
	if err := g.Wait(); err != nil {
		closeAll()
		return nil, func() {}, err
	}
	return gws, closeAll, nil
}

// parallel runs fn for every gateway and waits for all of them. A panicking
// fn is reported as LegExecutionPanic for its account.
func (c *Coordinator) parallel(ctx context.Context, asset string, gws []domain.ExchangeGateway, fn func(ctx context.Context, i int, gw domain.ExchangeGateway) error) []error {
	errs := make([]error, len(gws))
	var g errgroup.Group
	for i, gw := range gws {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("leg panicked", slog.String("account", gw.Address()), slog.Any("panic", r))
					errs[i] = domain.NewUnitError(domain.KindLegExecutionPanic, asset, fmt.Sprint(r), nil, gw.Address())
				}
			}()
			errs[i] = fn(ctx, i, gw)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// distinct rejects a group that lists the same account twice. Addresses
// compare case-insensitively.
func distinct(accounts []domain.AccountConfig) error {
	seen := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		k := strings.ToLower(a.Label())
		if _, ok := seen[k]; ok {
			return fmt.Errorf("%w: account %s listed twice", domain.ErrInvalidInput, a.Label())
		}
		seen[k] = struct{}{}
	}
	return nil
}

func firstErr(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// combine returns the first error. When several accounts failed with the
// same kind, their addresses are merged into one UnitError.
func combine(errs []error) error {
	first := firstErr(errs)
	var head *domain.UnitError
	if first == nil || !errors.As(first, &head) {
		return first
	}

	merged := *head
	merged.Accounts = nil
	for _, err := range errs {
		var ue *domain.UnitError
		if err != nil && errors.As(err, &ue) && ue.Kind == head.Kind {
			merged.Accounts = append(merged.Accounts, ue.Accounts...)
		}
	}
	if len(merged.Accounts) == len(head.Accounts) {
		return first
	}
	merged.Reason = ""
	merged.Err = nil
	return &merged
}

func weights(p domain.AllocationPlan) []int {
	out := make([]int, len(p.Slots))
	for i, s := range p.Slots {
		out[i] = s.WeightPercent
	}
	return out
}
