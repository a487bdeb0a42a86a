package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
	"github.com/BeerCodeIndustry/hyperliquid/internal/executor"
	"github.com/BeerCodeIndustry/hyperliquid/internal/metrics"
)

// eventTimeout bounds publishing and notification after an operation.
const eventTimeout = 5 * time.Second

// UnitCoordinator runs unit operations across a group of accounts.
type UnitCoordinator interface {
	CreateUnit(ctx context.Context, accounts []domain.AccountConfig, unit domain.Unit) (executor.UnitResult, error)
	CloseUnit(ctx context.Context, accounts []domain.AccountConfig, asset string) error
	CloseAndCreateUnit(ctx context.Context, accounts []domain.AccountConfig, unit domain.Unit) (executor.UnitResult, error)
	GroupStates(ctx context.Context, accounts []domain.AccountConfig) ([]domain.AccountState, error)
}

// Notifier delivers operator alerts, filtered by event type.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// BatchResolver turns a stored batch into ready-to-use account configs.
type BatchResolver interface {
	ResolveBatch(ctx context.Context, batchID string) ([]domain.AccountConfig, error)
}

// UnitService is the entry point for unit operations. It serialises
// operations on the same accounts and asset, runs them to completion even if
// the caller goes away, and reports every outcome as a UnitEvent.
type UnitService struct {
	coord    UnitCoordinator
	market   domain.MarketData
	guard    domain.UnitGuard
	bus      domain.SignalBus
	notifier Notifier
	batches  BatchResolver
	logger   *slog.Logger
}

// NewUnitService creates a UnitService. bus, notifier and batches may be nil.
func NewUnitService(
	coord UnitCoordinator,
	market domain.MarketData,
	guard domain.UnitGuard,
	bus domain.SignalBus,
	notifier Notifier,
	batches BatchResolver,
	logger *slog.Logger,
) *UnitService {
	return &UnitService{
		coord:    coord,
		market:   market,
		guard:    guard,
		bus:      bus,
		notifier: notifier,
		batches:  batches,
		logger:   logger.With(slog.String("component", "unit_service")),
	}
}

// CreateUnit opens unit across accounts.
func (s *UnitService) CreateUnit(ctx context.Context, accounts []domain.AccountConfig, unit domain.Unit) (executor.UnitResult, error) {
	start := time.Now()
	release, err := s.acquire(ctx, accounts, unit.Asset)
	if err != nil {
		return executor.UnitResult{}, err
	}
	defer release()

	res, err := s.coord.CreateUnit(context.WithoutCancel(ctx), accounts, unit)
	metrics.ObserveOperation("create", start, err)

	names := labels(accounts)
	for _, leg := range res.Legs {
		s.emit(ctx, legEvent(unit.Asset, leg))
	}
	switch {
	case err == nil:
		s.emit(ctx, newEvent(domain.EventUnitCreated, unit.Asset, names,
			fmt.Sprintf("size %s x%d across %d accounts", unit.Size, unit.Leverage, len(accounts)), nil))
	case len(res.Legs) > 0:
		s.emit(ctx, newEvent(domain.EventUnitRolledBack, unit.Asset, names, "unit rolled back", err))
	default:
		s.emit(ctx, newEvent(domain.EventUnitCreateFail, unit.Asset, names, "", err))
	}
	return res, err
}

// CloseUnit closes the group's position in asset.
func (s *UnitService) CloseUnit(ctx context.Context, accounts []domain.AccountConfig, asset string) error {
	start := time.Now()
	release, err := s.acquire(ctx, accounts, asset)
	if err != nil {
		return err
	}
	defer release()

	err = s.coord.CloseUnit(context.WithoutCancel(ctx), accounts, asset)
	metrics.ObserveOperation("close", start, err)
	s.emitClose(ctx, asset, accounts, err)
	return err
}

// CloseAndCreateUnit closes and reopens unit under one guard acquisition.
func (s *UnitService) CloseAndCreateUnit(ctx context.Context, accounts []domain.AccountConfig, unit domain.Unit) (executor.UnitResult, error) {
	start := time.Now()
	release, err := s.acquire(ctx, accounts, unit.Asset)
	if err != nil {
		return executor.UnitResult{}, err
	}
	defer release()

	res, err := s.coord.CloseAndCreateUnit(context.WithoutCancel(ctx), accounts, unit)
	metrics.ObserveOperation("recreate", start, err)

	names := labels(accounts)
	for _, leg := range res.Legs {
		s.emit(ctx, legEvent(unit.Asset, leg))
	}
	switch {
	case err == nil:
		s.emit(ctx, newEvent(domain.EventUnitCreated, unit.Asset, names, "unit recreated", nil))
	case len(res.Legs) > 0:
		s.emit(ctx, newEvent(domain.EventUnitRolledBack, unit.Asset, names, "unit rolled back", err))
	default:
		kind, _ := domain.KindOf(err)
		if kind == domain.KindCloseIncomplete {
			s.emit(ctx, newEvent(domain.EventUnitCloseFail, unit.Asset, names, "", err))
		} else {
			s.emit(ctx, newEvent(domain.EventUnitCreateFail, unit.Asset, names, "", err))
		}
	}
	return res, err
}

// GroupStates returns the margin summary and positions of every account.
func (s *UnitService) GroupStates(ctx context.Context, accounts []domain.AccountConfig) ([]domain.AccountState, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("unit_service: no accounts: %w", domain.ErrInvalidGroupSize)
	}
	return s.coord.GroupStates(ctx, accounts)
}

// AssetPrice returns the current mid price of asset.
func (s *UnitService) AssetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	px, err := s.market.MidPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unit_service: price of %s: %w", asset, err)
	}
	return px, nil
}

// AssetInfo returns the exchange metadata of asset.
func (s *UnitService) AssetInfo(ctx context.Context, asset string) (domain.AssetMeta, error) {
	meta, err := s.market.AssetInfo(ctx, asset)
	if err != nil {
		return domain.AssetMeta{}, fmt.Errorf("unit_service: info of %s: %w", asset, err)
	}
	return meta, nil
}

// CreateBatchUnit runs CreateUnit on a stored batch.
func (s *UnitService) CreateBatchUnit(ctx context.Context, batchID string, unit domain.Unit) (executor.UnitResult, error) {
	accounts, err := s.resolve(ctx, batchID)
	if err != nil {
		return executor.UnitResult{}, err
	}
	return s.CreateUnit(ctx, accounts, unit)
}

// CloseBatchUnit runs CloseUnit on a stored batch.
func (s *UnitService) CloseBatchUnit(ctx context.Context, batchID, asset string) error {
	accounts, err := s.resolve(ctx, batchID)
	if err != nil {
		return err
	}
	return s.CloseUnit(ctx, accounts, asset)
}

// RecreateBatchUnit runs CloseAndCreateUnit on a stored batch.
func (s *UnitService) RecreateBatchUnit(ctx context.Context, batchID string, unit domain.Unit) (executor.UnitResult, error) {
	accounts, err := s.resolve(ctx, batchID)
	if err != nil {
		return executor.UnitResult{}, err
	}
	return s.CloseAndCreateUnit(ctx, accounts, unit)
}

func (s *UnitService) resolve(ctx context.Context, batchID string) ([]domain.AccountConfig, error) {
	if s.batches == nil {
		return nil, fmt.Errorf("unit_service: batch %s: account registry disabled: %w", batchID, domain.ErrNotFound)
	}
	return s.batches.ResolveBatch(ctx, batchID)
}

func (s *UnitService) acquire(ctx context.Context, accounts []domain.AccountConfig, asset string) (func(), error) {
	if s.guard == nil {
		return func() {}, nil
	}
	release, err := s.guard.Acquire(ctx, executor.UnitKeys(accounts, asset))
	if err != nil {
		s.logger.Warn("unit busy", slog.String("asset", asset), slog.String("error", err.Error()))
		return nil, err
	}
	return release, nil
}

func (s *UnitService) emitClose(ctx context.Context, asset string, accounts []domain.AccountConfig, err error) {
	if err != nil {
		s.emit(ctx, newEvent(domain.EventUnitCloseFail, asset, labels(accounts), "", err))
		return
	}
	s.emit(ctx, newEvent(domain.EventUnitClosed, asset, labels(accounts), "unit closed", nil))
}

// emit publishes ev on the bus and forwards it to the notifier. Failures
// are logged only.
func (s *UnitService) emit(ctx context.Context, ev domain.UnitEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	if s.bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			err = s.bus.Publish(ctx, domain.ChannelUnitEvents, payload)
		}
		if err != nil {
			s.logger.Warn("publish unit event failed", slog.String("type", string(ev.Type)), slog.String("error", err.Error()))
		}
	}
	if s.notifier != nil && ev.Type != domain.EventUnitLegFinished {
		title := fmt.Sprintf("%s %s", strings.ReplaceAll(string(ev.Type), "_", " "), ev.Asset)
		msg := ev.Message
		if ev.Error != "" {
			msg = ev.Error
		}
		if err := s.notifier.Notify(ctx, string(ev.Type), title, msg); err != nil {
			s.logger.Warn("notify failed", slog.String("type", string(ev.Type)), slog.String("error", err.Error()))
		}
	}
}

func newEvent(typ domain.UnitEventType, asset string, accounts []string, msg string, err error) domain.UnitEvent {
	ev := domain.UnitEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Asset:     asset,
		Accounts:  accounts,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func legEvent(asset string, leg domain.LegOutcome) domain.UnitEvent {
	msg := fmt.Sprintf("%s: requested %s, filled %s", leg.State, leg.RequestedSize, leg.FilledSize)
	return newEvent(domain.EventUnitLegFinished, asset, []string{leg.Account}, msg, leg.Err)
}

func labels(accounts []domain.AccountConfig) []string {
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Label()
	}
	return out
}
