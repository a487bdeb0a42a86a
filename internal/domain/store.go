package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AccountStore persists exchange accounts.
type AccountStore interface {
	Create(ctx context.Context, acc Account) error
	GetByID(ctx context.Context, id string) (Account, error)
	List(ctx context.Context, opts ListOpts) ([]Account, error)
	Delete(ctx context.Context, id string) error
}

// ProxyStore persists proxies.
type ProxyStore interface {
	Create(ctx context.Context, p ProxyConfig) error
	GetByID(ctx context.Context, id string) (ProxyConfig, error)
	List(ctx context.Context, opts ListOpts) ([]ProxyConfig, error)
}

// BatchStore persists account batches.
type BatchStore interface {
	Create(ctx context.Context, b Batch) error
	GetByID(ctx context.Context, id string) (Batch, error)
	List(ctx context.Context, opts ListOpts) ([]Batch, error)
}
