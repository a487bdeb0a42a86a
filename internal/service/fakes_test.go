package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
	"github.com/BeerCodeIndustry/hyperliquid/internal/executor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCoordinator struct {
	mu       sync.Mutex
	calls    []string
	result   executor.UnitResult
	err      error
	block    chan struct{}
	accounts [][]domain.AccountConfig
}

func (f *fakeCoordinator) record(op string, accounts []domain.AccountConfig) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.accounts = append(f.accounts, accounts)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeCoordinator) CreateUnit(_ context.Context, accounts []domain.AccountConfig, _ domain.Unit) (executor.UnitResult, error) {
	f.record("create", accounts)
	return f.result, f.err
}

func (f *fakeCoordinator) CloseUnit(_ context.Context, accounts []domain.AccountConfig, _ string) error {
	f.record("close", accounts)
	return f.err
}

func (f *fakeCoordinator) CloseAndCreateUnit(_ context.Context, accounts []domain.AccountConfig, _ domain.Unit) (executor.UnitResult, error) {
	f.record("recreate", accounts)
	return f.result, f.err
}

func (f *fakeCoordinator) GroupStates(_ context.Context, accounts []domain.AccountConfig) ([]domain.AccountState, error) {
	f.record("states", accounts)
	out := make([]domain.AccountState, len(accounts))
	for i, a := range accounts {
		out[i] = domain.AccountState{Address: a.Address, Name: a.Name}
	}
	return out, f.err
}

func (f *fakeCoordinator) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeMarket struct{}

func (fakeMarket) MidPrice(_ context.Context, asset string) (decimal.Decimal, error) {
	if asset != "ETH" {
		return decimal.Zero, domain.ErrUnknownAsset
	}
	return decimal.RequireFromString("2500.5"), nil
}

func (fakeMarket) AssetInfo(_ context.Context, asset string) (domain.AssetMeta, error) {
	if asset != "ETH" {
		return domain.AssetMeta{}, domain.ErrUnknownAsset
	}
	return domain.AssetMeta{Name: "ETH", Index: 1, SizeDecimals: 4, MaxLeverage: 50}, nil
}

type sentNotification struct{ event, title, message string }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Notify(_ context.Context, event, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{event, title, message})
	return nil
}

func (f *fakeNotifier) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		out = append(out, s.event)
	}
	return out
}

// In-memory registry stores.

type memAccounts struct {
	mu   sync.Mutex
	rows []domain.Account
}

func (m *memAccounts) Create(_ context.Context, acc domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Address == acc.Address {
			return domain.ErrAlreadyExists
		}
	}
	m.rows = append(m.rows, acc)
	return nil
}

func (m *memAccounts) GetByID(_ context.Context, id string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

func (m *memAccounts) List(context.Context, domain.ListOpts) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Account(nil), m.rows...), nil
}

func (m *memAccounts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type memProxies struct {
	mu   sync.Mutex
	rows []domain.ProxyConfig
}

func (m *memProxies) Create(_ context.Context, p domain.ProxyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, p)
	return nil
}

func (m *memProxies) GetByID(_ context.Context, id string) (domain.ProxyConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.ProxyConfig{}, domain.ErrNotFound
}

func (m *memProxies) List(context.Context, domain.ListOpts) ([]domain.ProxyConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ProxyConfig(nil), m.rows...), nil
}

type memBatches struct {
	mu   sync.Mutex
	rows []domain.Batch
}

func (m *memBatches) Create(_ context.Context, b domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, b)
	return nil
}

func (m *memBatches) GetByID(_ context.Context, id string) (domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Batch{}, domain.ErrNotFound
}

func (m *memBatches) List(context.Context, domain.ListOpts) ([]domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Batch(nil), m.rows...), nil
}
