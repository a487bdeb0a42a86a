package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

// fakeGateway is an in-memory exchange account. Orders fill in full unless
// fills scripts otherwise, and move the position accordingly.
type fakeGateway struct {
	mu sync.Mutex

	addr     string
	balance  decimal.Decimal
	mid      decimal.Decimal
	position *domain.Position

	fills       []decimal.Decimal // per-order fill sizes, consumed in order
	fillCap     *decimal.Decimal  // caps every fill when set
	orderErr    error
	leverageErr error
	balanceErr  error
	panicOrder  bool
	blockOrder  bool // opening orders wait for ctx to end

	orders        []domain.OrderRequest
	leverageCalls int
	closed        bool
}

func newFakeGateway(addr string) *fakeGateway {
	return &fakeGateway{
		addr:    addr,
		balance: decimal.NewFromInt(10_000),
		mid:     decimal.NewFromInt(2000),
	}
}

func (f *fakeGateway) Address() string { return f.addr }

func (f *fakeGateway) MidPrice(context.Context, string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mid, nil
}

func (f *fakeGateway) AssetInfo(_ context.Context, asset string) (domain.AssetMeta, error) {
	return domain.AssetMeta{Name: asset, Index: 1, SizeDecimals: 4, MaxLeverage: 50}, nil
}

func (f *fakeGateway) Balance(context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeGateway) Position(_ context.Context, asset string) (*domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.position == nil || f.position.Asset != asset {
		return nil, nil
	}
	p := *f.position
	return &p, nil
}

func (f *fakeGateway) State(context.Context) (domain.AccountState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := domain.AccountState{Address: f.addr, AccountValue: f.balance}
	if f.position != nil {
		st.Positions = []domain.Position{*f.position}
	}
	return st, nil
}

func (f *fakeGateway) UpdateLeverage(context.Context, string, int, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverageCalls++
	return f.leverageErr
}

func (f *fakeGateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.FilledOrder, error) {
	f.mu.Lock()
	block := f.blockOrder && !req.ReduceOnly
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return domain.FilledOrder{}, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, req)
	if f.panicOrder {
		panic("boom")
	}
	if f.orderErr != nil {
		return domain.FilledOrder{}, f.orderErr
	}

	fill := req.Size
	if len(f.fills) > 0 {
		fill = f.fills[0]
		f.fills = f.fills[1:]
	}
	if f.fillCap != nil && fill.GreaterThan(*f.fillCap) {
		fill = *f.fillCap
	}

	delta := fill
	if !req.IsBuy {
		delta = fill.Neg()
	}
	if f.position == nil {
		f.position = &domain.Position{Asset: req.Asset}
	}
	f.position.Size = f.position.Size.Add(delta)
	if f.position.Size.IsZero() {
		f.position = nil
	}
	return domain.FilledOrder{OrderID: int64(len(f.orders)), TotalSize: fill, AvgPrice: req.LimitPrice}, nil
}

func (f *fakeGateway) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeGateway) setPosition(asset string, size string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = &domain.Position{Asset: asset, Size: decimal.RequireFromString(size)}
}

func (f *fakeGateway) positionSize() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.position == nil {
		return decimal.Zero
	}
	return f.position.Size
}

func (f *fakeGateway) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeGateway) ordersCopy() []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderRequest(nil), f.orders...)
}

// fakeFactory hands out fakeGateways by account address.
type fakeFactory struct {
	gws     map[string]*fakeGateway
	openErr map[string]error
}

func newFakeFactory(gws ...*fakeGateway) *fakeFactory {
	f := &fakeFactory{gws: map[string]*fakeGateway{}, openErr: map[string]error{}}
	for _, gw := range gws {
		f.gws[gw.addr] = gw
	}
	return f
}

func (f *fakeFactory) Open(_ context.Context, acc domain.AccountConfig) (domain.ExchangeGateway, error) {
	if err := f.openErr[acc.Address]; err != nil {
		return nil, err
	}
	gw, ok := f.gws[acc.Address]
	if !ok {
		return nil, errors.New("unknown account")
	}
	return gw, nil
}

func accountsFor(gws ...*fakeGateway) []domain.AccountConfig {
	out := make([]domain.AccountConfig, len(gws))
	for i, gw := range gws {
		out[i] = domain.AccountConfig{Name: fmt.Sprintf("acc%d", i), Address: gw.addr}
	}
	return out
}

func makeGateways(n int) []*fakeGateway {
	out := make([]*fakeGateway, n)
	for i := range out {
		out[i] = newFakeGateway(fmt.Sprintf("0x%040d", i+1))
	}
	return out
}
