package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// MarketData is the public, unauthenticated part of the exchange.
type MarketData interface {
	MidPrice(ctx context.Context, asset string) (decimal.Decimal, error)
	AssetInfo(ctx context.Context, asset string) (AssetMeta, error)
}

// ExchangeGateway is an authenticated handle bound to a single account.
// Position returns nil when the account holds nothing in asset.
type ExchangeGateway interface {
	MarketData
	Address() string
	Balance(ctx context.Context) (decimal.Decimal, error)
	Position(ctx context.Context, asset string) (*Position, error)
	State(ctx context.Context) (AccountState, error)
	UpdateLeverage(ctx context.Context, asset string, leverage int, isCross bool) error
	PlaceOrder(ctx context.Context, req OrderRequest) (FilledOrder, error)
	Close()
}

// GatewayFactory opens exchange handles.
type GatewayFactory interface {
	Open(ctx context.Context, acc AccountConfig) (ExchangeGateway, error)
}
