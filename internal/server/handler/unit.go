package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
	"github.com/BeerCodeIndustry/hyperliquid/internal/executor"
)

// UnitService is what the unit endpoints need from the service layer.
type UnitService interface {
	CreateUnit(ctx context.Context, accounts []domain.AccountConfig, unit domain.Unit) (executor.UnitResult, error)
	CloseUnit(ctx context.Context, accounts []domain.AccountConfig, asset string) error
	CloseAndCreateUnit(ctx context.Context, accounts []domain.AccountConfig, unit domain.Unit) (executor.UnitResult, error)
	GroupStates(ctx context.Context, accounts []domain.AccountConfig) ([]domain.AccountState, error)
	AssetPrice(ctx context.Context, asset string) (decimal.Decimal, error)
	AssetInfo(ctx context.Context, asset string) (domain.AssetMeta, error)
	CreateBatchUnit(ctx context.Context, batchID string, unit domain.Unit) (executor.UnitResult, error)
	CloseBatchUnit(ctx context.Context, batchID, asset string) error
	RecreateBatchUnit(ctx context.Context, batchID string, unit domain.Unit) (executor.UnitResult, error)
}

// UnitHandler serves unit operations and asset lookups.
type UnitHandler struct {
	units  UnitService
	logger *slog.Logger
}

// NewUnitHandler creates a UnitHandler.
func NewUnitHandler(units UnitService, logger *slog.Logger) *UnitHandler {
	return &UnitHandler{units: units, logger: logger}
}

type unitRequest struct {
	Accounts []domain.AccountConfig `json:"accounts"`
	Unit     domain.Unit            `json:"unit"`
}

type closeRequest struct {
	Accounts []domain.AccountConfig `json:"accounts"`
	Asset    string                 `json:"asset"`
}

type statesRequest struct {
	Accounts []domain.AccountConfig `json:"accounts"`
}

type legView struct {
	Account       string           `json:"account"`
	RequestedSize decimal.Decimal  `json:"requested_size"`
	FilledSize    decimal.Decimal  `json:"filled_size"`
	State         domain.LegState  `json:"state"`
	Position      *domain.Position `json:"position,omitempty"`
	Error         string           `json:"error,omitempty"`
}

type unitResponse struct {
	Asset string                `json:"asset"`
	Plan  domain.AllocationPlan `json:"plan"`
	Legs  []legView             `json:"legs"`
}

func toUnitResponse(res executor.UnitResult) unitResponse {
	out := unitResponse{Asset: res.Asset, Plan: res.Plan, Legs: make([]legView, len(res.Legs))}
	for i, l := range res.Legs {
		out.Legs[i] = legView{
			Account:       l.Account,
			RequestedSize: l.RequestedSize,
			FilledSize:    l.FilledSize,
			State:         l.State,
			Position:      l.FinalPosition,
		}
		if l.Err != nil {
			out.Legs[i].Error = l.Err.Error()
		}
	}
	return out
}

// CreateUnit opens a unit across the given accounts.
// POST /api/units
func (h *UnitHandler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req unitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "create unit", err)
		return
	}
	normalizeUnit(&req.Unit)
	res, err := h.units.CreateUnit(r.Context(), req.Accounts, req.Unit)
	if err != nil {
		writeServiceError(w, r, h.logger, "create unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitResponse(res))
}

// CloseUnit closes the accounts' positions in an asset.
// POST /api/units/close
func (h *UnitHandler) CloseUnit(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "close unit", err)
		return
	}
	asset := strings.TrimSpace(req.Asset)
	if err := h.units.CloseUnit(r.Context(), req.Accounts, asset); err != nil {
		writeServiceError(w, r, h.logger, "close unit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed", "asset": asset})
}

// RecreateUnit closes and reopens a unit.
// POST /api/units/recreate
func (h *UnitHandler) RecreateUnit(w http.ResponseWriter, r *http.Request) {
	var req unitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "recreate unit", err)
		return
	}
	normalizeUnit(&req.Unit)
	res, err := h.units.CloseAndCreateUnit(r.Context(), req.Accounts, req.Unit)
	if err != nil {
		writeServiceError(w, r, h.logger, "recreate unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitResponse(res))
}

// States returns the margin summary and positions of every account.
// POST /api/units/states
func (h *UnitHandler) States(w http.ResponseWriter, r *http.Request) {
	var req statesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "unit states", err)
		return
	}
	states, err := h.units.GroupStates(r.Context(), req.Accounts)
	if err != nil {
		writeServiceError(w, r, h.logger, "unit states", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"states": states})
}

// Asset returns an asset's mid price and size decimals.
// GET /api/assets/{asset}
func (h *UnitHandler) Asset(w http.ResponseWriter, r *http.Request) {
	asset := r.PathValue("asset")
	meta, err := h.units.AssetInfo(r.Context(), asset)
	if err != nil {
		writeServiceError(w, r, h.logger, "asset info", err)
		return
	}
	px, err := h.units.AssetPrice(r.Context(), asset)
	if err != nil {
		writeServiceError(w, r, h.logger, "asset price", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":         meta.Name,
		"mid_price":     px,
		"size_decimals": meta.SizeDecimals,
		"max_leverage":  meta.MaxLeverage,
	})
}

// CreateBatchUnit opens a unit on a stored batch.
// POST /api/batches/{id}/units
func (h *UnitHandler) CreateBatchUnit(w http.ResponseWriter, r *http.Request) {
	var u domain.Unit
	if err := decodeJSON(w, r, &u); err != nil {
		writeServiceError(w, r, h.logger, "create batch unit", err)
		return
	}
	normalizeUnit(&u)
	res, err := h.units.CreateBatchUnit(r.Context(), r.PathValue("id"), u)
	if err != nil {
		writeServiceError(w, r, h.logger, "create batch unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitResponse(res))
}

// CloseBatchUnit closes a stored batch's positions in an asset.
// POST /api/batches/{id}/units/close
func (h *UnitHandler) CloseBatchUnit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset string `json:"asset"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "close batch unit", err)
		return
	}
	asset := strings.TrimSpace(req.Asset)
	if asset == "" {
		writeServiceError(w, r, h.logger, "close batch unit", fmt.Errorf("%w: asset is required", domain.ErrInvalidUnit))
		return
	}
	if err := h.units.CloseBatchUnit(r.Context(), r.PathValue("id"), asset); err != nil {
		writeServiceError(w, r, h.logger, "close batch unit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed", "asset": asset})
}

// RecreateBatchUnit closes and reopens a unit on a stored batch.
// POST /api/batches/{id}/units/recreate
func (h *UnitHandler) RecreateBatchUnit(w http.ResponseWriter, r *http.Request) {
	var u domain.Unit
	if err := decodeJSON(w, r, &u); err != nil {
		writeServiceError(w, r, h.logger, "recreate batch unit", err)
		return
	}
	normalizeUnit(&u)
	res, err := h.units.RecreateBatchUnit(r.Context(), r.PathValue("id"), u)
	if err != nil {
		writeServiceError(w, r, h.logger, "recreate batch unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitResponse(res))
}

// normalizeUnit trims the asset name. Case is kept: tickers such as kPEPE
// are case-sensitive on the exchange.
func normalizeUnit(u *domain.Unit) {
	u.Asset = strings.TrimSpace(u.Asset)
}
