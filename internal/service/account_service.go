package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/BeerCodeIndustry/hyperliquid/internal/crypto"
	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

// NewAccount is the input of AccountService.CreateAccount.
type NewAccount struct {
	Name       string  `json:"name"`
	Address    string  `json:"public_address"`
	PrivateKey string  `json:"api_private_key"`
	ProxyID    *string `json:"proxy_id,omitempty"`
}

// AccountService manages the account, proxy and batch registry. API keys
// are encrypted before they reach the store and decrypted only when a batch
// is resolved for an operation.
type AccountService struct {
	accounts    domain.AccountStore
	proxies     domain.ProxyStore
	batches     domain.BatchStore
	keyPassword string
	logger      *slog.Logger
}

// NewAccountService creates an AccountService. keyPassword encrypts API
// keys at rest and must not be empty.
func NewAccountService(
	accounts domain.AccountStore,
	proxies domain.ProxyStore,
	batches domain.BatchStore,
	keyPassword string,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:    accounts,
		proxies:     proxies,
		batches:     batches,
		keyPassword: keyPassword,
		logger:      logger.With(slog.String("component", "account_service")),
	}
}

// CreateAccount validates and stores a new account with its key encrypted.
func (s *AccountService) CreateAccount(ctx context.Context, in NewAccount) (domain.Account, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Account{}, fmt.Errorf("%w: account name is required", domain.ErrInvalidInput)
	}
	if !common.IsHexAddress(in.Address) {
		return domain.Account{}, fmt.Errorf("%w: %q is not an address", domain.ErrInvalidInput, in.Address)
	}
	key, err := crypto.NormalizeKey(in.PrivateKey)
	if err != nil {
		return domain.Account{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if in.ProxyID != nil {
		if _, err := s.proxies.GetByID(ctx, *in.ProxyID); err != nil {
			return domain.Account{}, fmt.Errorf("account_service: proxy %s: %w", *in.ProxyID, err)
		}
	}

	id := uuid.NewString()
	enc, err := crypto.SealKey(id, key, s.keyPassword)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account_service: encrypt key: %w", err)
	}
	acc := domain.Account{
		ID:           id,
		Name:         name,
		Address:      strings.ToLower(common.HexToAddress(in.Address).Hex()),
		EncryptedKey: string(enc),
		ProxyID:      in.ProxyID,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		return domain.Account{}, err
	}
	s.logger.Info("account created", slog.String("id", acc.ID), slog.String("address", acc.Address))
	return acc, nil
}

// ListAccounts returns stored accounts. Keys are never included.
func (s *AccountService) ListAccounts(ctx context.Context, opts domain.ListOpts) ([]domain.Account, error) {
	return s.accounts.List(ctx, opts)
}

// DeleteAccount removes an account and detaches it from its batches.
func (s *AccountService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("account deleted", slog.String("id", id))
	return nil
}

// CreateProxy stores a proxy.
func (s *AccountService) CreateProxy(ctx context.Context, p domain.ProxyConfig) (domain.ProxyConfig, error) {
	p.Host = strings.TrimSpace(p.Host)
	if p.Host == "" {
		return domain.ProxyConfig{}, fmt.Errorf("%w: proxy host is required", domain.ErrInvalidInput)
	}
	if p.Port <= 0 || p.Port > 65535 {
		return domain.ProxyConfig{}, fmt.Errorf("%w: proxy port %d out of range", domain.ErrInvalidInput, p.Port)
	}
	p.ID = uuid.NewString()
	if err := s.proxies.Create(ctx, p); err != nil {
		return domain.ProxyConfig{}, err
	}
	return redactProxy(p), nil
}

// ListProxies returns stored proxies without passwords.
func (s *AccountService) ListProxies(ctx context.Context, opts domain.ListOpts) ([]domain.ProxyConfig, error) {
	list, err := s.proxies.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i] = redactProxy(list[i])
	}
	return list, nil
}

// CreateBatch stores an ordered group of 2, 4 or 6 distinct accounts.
func (s *AccountService) CreateBatch(ctx context.Context, name string, accountIDs []string) (domain.Batch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Batch{}, fmt.Errorf("%w: batch name is required", domain.ErrInvalidInput)
	}
	if n := len(accountIDs); n != 2 && n != 4 && n != 6 {
		return domain.Batch{}, fmt.Errorf("account_service: batch of %d: %w", n, domain.ErrInvalidGroupSize)
	}
	seen := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		if seen[id] {
			return domain.Batch{}, fmt.Errorf("%w: account %s listed twice", domain.ErrInvalidInput, id)
		}
		seen[id] = true
		if _, err := s.accounts.GetByID(ctx, id); err != nil {
			return domain.Batch{}, fmt.Errorf("account_service: account %s: %w", id, err)
		}
	}

	b := domain.Batch{ID: uuid.NewString(), Name: name, AccountIDs: accountIDs}
	if err := s.batches.Create(ctx, b); err != nil {
		return domain.Batch{}, err
	}
	return b, nil
}

// ListBatches returns stored batches.
func (s *AccountService) ListBatches(ctx context.Context, opts domain.ListOpts) ([]domain.Batch, error) {
	return s.batches.List(ctx, opts)
}

// ResolveBatch loads the batch's accounts in order, decrypts their keys and
// attaches their proxies. Accounts without a proxy are left for the gateway
// factory's default.
func (s *AccountService) ResolveBatch(ctx context.Context, batchID string) ([]domain.AccountConfig, error) {
	b, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("account_service: batch %s: %w", batchID, err)
	}

	proxies := make(map[string]*domain.ProxyConfig)
	out := make([]domain.AccountConfig, 0, len(b.AccountIDs))
	for _, id := range b.AccountIDs {
		acc, err := s.accounts.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("account_service: batch %s account %s: %w", batchID, id, err)
		}
		key, err := crypto.OpenKey(acc.ID, []byte(acc.EncryptedKey), s.keyPassword)
		if err != nil {
			return nil, fmt.Errorf("account_service: key of %s: %w", acc.Name, err)
		}

		cfg := domain.AccountConfig{ID: acc.ID, Name: acc.Name, Address: acc.Address, PrivateKey: key}
		if acc.ProxyID != nil {
			p, ok := proxies[*acc.ProxyID]
			if !ok {
				loaded, err := s.proxies.GetByID(ctx, *acc.ProxyID)
				if err != nil {
					return nil, fmt.Errorf("account_service: proxy of %s: %w", acc.Name, err)
				}
				p = &loaded
				proxies[*acc.ProxyID] = p
			}
			cfg.Proxy = p
		}
		out = append(out, cfg)
	}
	return out, nil
}

func redactProxy(p domain.ProxyConfig) domain.ProxyConfig {
	if p.Password != "" {
		p.Password = "***"
	}
	return p
}
