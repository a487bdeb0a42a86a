package hyperliquid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/BeerCodeIndustry/hyperliquid/internal/crypto"
	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

// MetaCache caches the perpetuals universe. The universe changes rarely and
// every order needs the asset index. Concurrent refreshes share one request.
type MetaCache struct {
	client *Client
	ttl    time.Duration
	group  singleflight.Group

	mu       sync.RWMutex
	byName   map[string]domain.AssetMeta
	loadedAt time.Time
}

// NewMetaCache returns a cache refreshed through client every ttl.
func NewMetaCache(client *Client, ttl time.Duration) *MetaCache {
	return &MetaCache{client: client, ttl: ttl}
}

// Lookup returns the metadata of asset.
func (m *MetaCache) Lookup(ctx context.Context, asset string) (domain.AssetMeta, error) {
	m.mu.RLock()
	byName, fresh := m.byName, m.byName != nil && time.Since(m.loadedAt) <= m.ttl
	m.mu.RUnlock()

	if !fresh {
		refreshed, err := m.refresh(ctx)
		switch {
		case err == nil:
			byName = refreshed
		case byName == nil:
			return domain.AssetMeta{}, err
		default:
			// Serve the stale universe rather than failing the leg.
			m.client.logger.Warn("meta refresh failed, using cached universe",
				slog.String("error", err.Error()),
			)
		}
	}

	am, ok := byName[asset]
	if !ok {
		return domain.AssetMeta{}, fmt.Errorf("hyperliquid: %w: %s", domain.ErrUnknownAsset, asset)
	}
	return am, nil
}

// refresh loads the universe once for all concurrent callers. The shared
// request outlives any single caller's cancellation; each caller still
// stops waiting when its own ctx ends.
func (m *MetaCache) refresh(ctx context.Context) (map[string]domain.AssetMeta, error) {
	ch := m.group.DoChan("meta", func() (any, error) {
		m.mu.RLock()
		cur, fresh := m.byName, m.byName != nil && time.Since(m.loadedAt) <= m.ttl
		m.mu.RUnlock()
		if fresh {
			return cur, nil
		}

		meta, err := m.client.Meta(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		byName := make(map[string]domain.AssetMeta, len(meta.Universe))
		for i, a := range meta.Universe {
			byName[a.Name] = domain.AssetMeta{
				Name:         a.Name,
				Index:        i,
				SizeDecimals: a.SzDecimals,
				MaxLeverage:  a.MaxLeverage,
			}
		}
		m.mu.Lock()
		m.byName = byName
		m.loadedAt = time.Now()
		m.mu.Unlock()
		return byName, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]domain.AssetMeta), nil
	}
}

// MarketData answers public price and metadata queries without credentials.
type MarketData struct {
	client *Client
	meta   *MetaCache
}

// MidPrice returns the current mid price of asset.
func (m *MarketData) MidPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	return midPrice(ctx, m.client, asset)
}

// AssetInfo returns the universe entry of asset.
func (m *MarketData) AssetInfo(ctx context.Context, asset string) (domain.AssetMeta, error) {
	return m.meta.Lookup(ctx, asset)
}

func midPrice(ctx context.Context, c *Client, asset string) (decimal.Decimal, error) {
	mids, err := c.AllMids(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	px, ok := mids[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("hyperliquid: no mid price: %w: %s", domain.ErrUnknownAsset, asset)
	}
	return px, nil
}

// Gateway is the ExchangeGateway of one account.
type Gateway struct {
	client  *Client
	meta    *MetaCache
	address string
}

var _ domain.ExchangeGateway = (*Gateway)(nil)

func (g *Gateway) Address() string { return g.address }

func (g *Gateway) MidPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	return midPrice(ctx, g.client, asset)
}

func (g *Gateway) AssetInfo(ctx context.Context, asset string) (domain.AssetMeta, error) {
	return g.meta.Lookup(ctx, asset)
}

// Balance returns account value minus total margin used.
func (g *Gateway) Balance(ctx context.Context) (decimal.Decimal, error) {
	st, err := g.State(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return st.FreeBalance(), nil
}

func (g *Gateway) Position(ctx context.Context, asset string) (*domain.Position, error) {
	st, err := g.State(ctx)
	if err != nil {
		return nil, err
	}
	return st.Position(asset), nil
}

func (g *Gateway) State(ctx context.Context) (domain.AccountState, error) {
	raw, err := g.client.ClearinghouseState(ctx, g.address)
	if err != nil {
		return domain.AccountState{}, err
	}
	return toAccountState(g.address, raw), nil
}

func (g *Gateway) UpdateLeverage(ctx context.Context, asset string, leverage int, isCross bool) error {
	am, err := g.meta.Lookup(ctx, asset)
	if err != nil {
		return err
	}
	return g.client.UpdateLeverage(ctx, am.Index, leverage, isCross)
}

func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.FilledOrder, error) {
	am, err := g.meta.Lookup(ctx, req.Asset)
	if err != nil {
		return domain.FilledOrder{}, err
	}
	return g.client.PlaceOrder(ctx, am.Index, req)
}

func (g *Gateway) Close() { g.client.Close() }

// FactoryConfig configures gateway construction.
type FactoryConfig struct {
	BaseURL string
	Timeout time.Duration
	Mainnet bool
	// DefaultProxy is used by accounts without a proxy of their own.
	DefaultProxy *domain.ProxyConfig
	MetaTTL      time.Duration
}

// Factory opens per-account gateways. All gateways share one universe cache.
type Factory struct {
	cfg    FactoryConfig
	public *Client
	meta   *MetaCache
	logger *slog.Logger
}

var _ domain.GatewayFactory = (*Factory)(nil)

// NewFactory creates a Factory. Public reads go through the default proxy.
func NewFactory(cfg FactoryConfig, logger *slog.Logger) *Factory {
	if cfg.MetaTTL <= 0 {
		cfg.MetaTTL = 10 * time.Minute
	}
	public := NewClient(ClientConfig{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Mainnet: cfg.Mainnet,
		Proxy:   cfg.DefaultProxy,
	}, nil, logger)
	return &Factory{
		cfg:    cfg,
		public: public,
		meta:   NewMetaCache(public, cfg.MetaTTL),
		logger: logger,
	}
}

// MarketData returns the credential-free market data reader.
func (f *Factory) MarketData() *MarketData {
	return &MarketData{client: f.public, meta: f.meta}
}

// Open builds a gateway for acc. No network call is made.
func (f *Factory) Open(_ context.Context, acc domain.AccountConfig) (domain.ExchangeGateway, error) {
	if !common.IsHexAddress(acc.Address) {
		return nil, fmt.Errorf("hyperliquid: account %q: invalid public address %q", acc.Name, acc.Address)
	}
	signer, err := crypto.NewSigner(acc.PrivateKey, f.cfg.Mainnet)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: account %q: %w", acc.Name, err)
	}

	proxy := acc.Proxy
	if proxy == nil || proxy.IsZero() {
		proxy = f.cfg.DefaultProxy
	}

	client := NewClient(ClientConfig{
		BaseURL: f.cfg.BaseURL,
		Timeout: f.cfg.Timeout,
		Mainnet: f.cfg.Mainnet,
		Proxy:   proxy,
	}, signer, f.logger.With(slog.String("account", acc.Address)))

	return &Gateway{
		client:  client,
		meta:    f.meta,
		address: strings.ToLower(common.HexToAddress(acc.Address).Hex()),
	}, nil
}

// Close releases the public client's connections.
func (f *Factory) Close() { f.public.Close() }

func toAccountState(address string, raw ClearinghouseState) domain.AccountState {
	st := domain.AccountState{
		Address:         address,
		AccountValue:    parseDecimal(raw.MarginSummary.AccountValue),
		TotalMarginUsed: parseDecimal(raw.MarginSummary.TotalMarginUsed),
		Withdrawable:    parseDecimal(raw.Withdrawable),
	}
	for _, ap := range raw.AssetPositions {
		p := ap.Position
		st.Positions = append(st.Positions, domain.Position{
			Asset:            p.Coin,
			Size:             parseDecimal(p.Szi),
			EntryPrice:       parseDecimal(p.EntryPx),
			PositionValue:    parseDecimal(p.PositionValue),
			UnrealizedPnL:    parseDecimal(p.UnrealizedPnl),
			MarginUsed:       parseDecimal(p.MarginUsed),
			LiquidationPrice: parseDecimal(p.LiquidationPx),
			Leverage:         p.Leverage.Value,
			LeverageType:     p.Leverage.Type,
		})
	}
	return st
}

// parseDecimal treats empty or malformed values (null on the wire) as zero.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
