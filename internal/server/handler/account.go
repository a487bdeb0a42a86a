package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
	"github.com/BeerCodeIndustry/hyperliquid/internal/service"
)

// AccountService is what the registry endpoints need from the service layer.
type AccountService interface {
	CreateAccount(ctx context.Context, in service.NewAccount) (domain.Account, error)
	ListAccounts(ctx context.Context, opts domain.ListOpts) ([]domain.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	CreateProxy(ctx context.Context, p domain.ProxyConfig) (domain.ProxyConfig, error)
	ListProxies(ctx context.Context, opts domain.ListOpts) ([]domain.ProxyConfig, error)
	CreateBatch(ctx context.Context, name string, accountIDs []string) (domain.Batch, error)
	ListBatches(ctx context.Context, opts domain.ListOpts) ([]domain.Batch, error)
}

// AccountHandler serves the account, proxy and batch registry.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// ListAccounts GET /api/accounts
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.accounts.ListAccounts(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list accounts", err)
		return
	}
	if list == nil {
		list = []domain.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": list})
}

// CreateAccount POST /api/accounts
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var in service.NewAccount
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, h.logger, "create account", err)
		return
	}
	acc, err := h.accounts.CreateAccount(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, "create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

// DeleteAccount DELETE /api/accounts/{id}
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteAccount(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, h.logger, "delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListProxies GET /api/proxies
func (h *AccountHandler) ListProxies(w http.ResponseWriter, r *http.Request) {
	list, err := h.accounts.ListProxies(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list proxies", err)
		return
	}
	if list == nil {
		list = []domain.ProxyConfig{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"proxies": list})
}

// CreateProxy POST /api/proxies
func (h *AccountHandler) CreateProxy(w http.ResponseWriter, r *http.Request) {
	var p domain.ProxyConfig
	if err := decodeJSON(w, r, &p); err != nil {
		writeServiceError(w, r, h.logger, "create proxy", err)
		return
	}
	created, err := h.accounts.CreateProxy(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, h.logger, "create proxy", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListBatches GET /api/batches
func (h *AccountHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	list, err := h.accounts.ListBatches(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list batches", err)
		return
	}
	if list == nil {
		list = []domain.Batch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": list})
}

// CreateBatch POST /api/batches
func (h *AccountHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string   `json:"name"`
		AccountIDs []string `json:"account_ids"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "create batch", err)
		return
	}
	b, err := h.accounts.CreateBatch(r.Context(), req.Name, req.AccountIDs)
	if err != nil {
		writeServiceError(w, r, h.logger, "create batch", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}
