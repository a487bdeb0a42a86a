package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeerCodeIndustry/hyperliquid/internal/allocator"
	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(gws ...*fakeGateway) (*Coordinator, *fakeFactory) {
	f := newFakeFactory(gws...)
	legs := NewLegExecutor(DefaultLegConfig(), testLogger())
	return NewCoordinator(f, legs, allocator.NewSeeded(allocator.DefaultConfig(), 7), testLogger()), f
}

func ethUnit(size string, leverage int) domain.Unit {
	return domain.Unit{Asset: "ETH", Size: decimal.RequireFromString(size), Leverage: leverage, SizePrecision: 4}
}

func TestCreateUnit_TwoAccounts(t *testing.T) {
	gws := makeGateways(2)
	c, _ := newTestCoordinator(gws...)

	res, err := c.CreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	require.NoError(t, err)
	require.Len(t, res.Legs, 2)

	assert.True(t, decimal.NewFromInt(5).Equal(gws[0].positionSize()), "leg 0 long 5")
	assert.True(t, decimal.NewFromInt(-5).Equal(gws[1].positionSize()), "leg 1 short 5")
	for i, leg := range res.Legs {
		assert.Equal(t, domain.LegCommitted, leg.State, "leg %d", i)
		assert.True(t, decimal.NewFromInt(5).Equal(leg.RequestedSize), "leg %d", i)
		assert.NoError(t, leg.Err)
	}

	orders := gws[0].ordersCopy()
	require.Len(t, orders, 1)
	assert.True(t, orders[0].IsBuy)
	assert.False(t, orders[0].ReduceOnly)
	assert.Equal(t, domain.TifFrontendMarket, orders[0].TimeInForce)
	assert.True(t, orders[0].LimitPrice.GreaterThan(gws[0].mid), "buy limit above mid")
	assert.False(t, gws[1].ordersCopy()[0].IsBuy)
	assert.Equal(t, 2, gws[0].leverageCalls, "group sync and leg sync")
}

func TestCreateUnit_FourAccountsBalanced(t *testing.T) {
	gws := makeGateways(4)
	c, _ := newTestCoordinator(gws...)

	res, err := c.CreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 1))
	require.NoError(t, err)

	buy, sell := decimal.Zero, decimal.Zero
	for _, gw := range gws {
		p := gw.positionSize()
		require.False(t, p.IsZero())
		if p.IsPositive() {
			buy = buy.Add(p)
		} else {
			sell = sell.Add(p.Neg())
		}
	}
	assert.True(t, decimal.NewFromInt(1).Equal(buy), "buy side %s", buy)
	assert.True(t, decimal.NewFromInt(1).Equal(sell), "sell side %s", sell)
	assert.Len(t, res.Plan.Weights(true), 1)
	assert.Len(t, res.Plan.Weights(false), 3)
}

func TestCreateUnit_SixAccountsSmartBalance(t *testing.T) {
	gws := makeGateways(6)
	for i, gw := range gws {
		gw.balance = decimal.NewFromInt(int64(10_000 + i*1000))
	}
	c, _ := newTestCoordinator(gws...)

	u := ethUnit("1", 1)
	u.SmartBalanceUsage = true
	res, err := c.CreateUnit(context.Background(), accountsFor(gws...), u)
	require.NoError(t, err)

	// Richest account carries the larger fat weight.
	fat := res.Plan.Weights(true)
	require.Len(t, fat, 2)
	assert.True(t, res.Plan.Slots[5].IsFat)
	assert.Equal(t, max(fat[0], fat[1]), res.Plan.Slots[5].WeightPercent)
}

func TestCreateUnit_InsufficientBalanceNoOrders(t *testing.T) {
	gws := makeGateways(2)
	gws[1].balance = decimal.NewFromInt(100)
	c, _ := newTestCoordinator(gws...)

	_, err := c.CreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Contains(t, err.Error(), gws[1].addr)
	assert.NotContains(t, err.Error(), gws[0].addr)
	assert.Zero(t, gws[0].orderCount())
	assert.Zero(t, gws[1].orderCount())
	assert.Zero(t, gws[0].leverageCalls)
}

func TestCreateUnit_InsufficientBalanceMergesAccounts(t *testing.T) {
	gws := makeGateways(2)
	gws[0].balance = decimal.NewFromInt(1)
	gws[1].balance = decimal.NewFromInt(1)
	c, _ := newTestCoordinator(gws...)

	_, err := c.CreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), gws[0].addr+" & "+gws[1].addr)
}

func TestCreateUnit_UnitAlreadyExists(t *testing.T) {
	gws := makeGateways(2)
	gws[0].setPosition("ETH", "2")
	c, _ := newTestCoordinator(gws...)

	_, err := c.CreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	assert.ErrorIs(t, err, domain.ErrUnitAlreadyExists)
	assert.Zero(t, gws[0].orderCount())
	assert.Zero(t, gws[1].orderCount())
	assert.True(t, decimal.NewFromInt(2).Equal(gws[0].positionSize()), "existing position untouched")
}

func TestCreateUnit_RollsBackOnLegFailure(t *testing.T) {
	gws := makeGateways(2)
	gws[1].orderErr = errors.New("margin rejected")
	c, _ := newTestCoordinator(gws...)

	res, err := c.CreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExchangeRejected)
	kind, ok := domain.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, domain.KindExchangeRejected, kind)

	assert.True(t, gws[0].positionSize().IsZero(), "successful leg closed")
	orders := gws[0].ordersCopy()
	require.Len(t, orders, 2)
	assert.False(t, orders[1].IsBuy)
	assert.True(t, orders[1].ReduceOnly)

	assert.Equal(t, domain.LegCommitted, res.Legs[0].State)
	assert.Equal(t, domain.LegFailed, res.Legs[1].State)
}

func TestCreateUnit_PartialFillCompensates(t *testing.T) {
	gws := makeGateways(2)
	gws[1].fills = []decimal.Decimal{decimal.NewFromInt(4)}
	c, _ := newTestCoordinator(gws...)

	_, err := c.CreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPartialFill)
	assert.True(t, gws[0].positionSize().IsZero())
	assert.True(t, gws[1].positionSize().IsZero())
}

func TestCreateUnit_LeverageFailureIgnored(t *testing.T) {
	gws := makeGateways(2)
	gws[0].leverageErr = errors.New("leverage rejected")
	c, _ := newTestCoordinator(gws...)

	_, err := c.CreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(gws[0].positionSize()))
}

func TestCreateUnit_PanicBecomesLegError(t *testing.T) {
	gws := makeGateways(2)
	gws[1].panicOrder = true
	c, _ := newTestCoordinator(gws...)

	_, err := c.CreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLegPanic)
	assert.True(t, gws[0].positionSize().IsZero(), "healthy leg rolled back")
}

func TestCreateUnit_HandlerInitFailed(t *testing.T) {
	gws := makeGateways(2)
	c, f := newTestCoordinator(gws...)
	f.openErr[gws[1].addr] = errors.New("bad key")

	_, err := c.CreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	assert.ErrorIs(t, err, domain.ErrHandlerInitFailed)
	assert.Zero(t, gws[0].orderCount())
	assert.Zero(t, gws[0].leverageCalls)
}

func TestCreateUnit_Validation(t *testing.T) {
	c, _ := newTestCoordinator()

	_, err := c.CreateUnit(context.Background(), accountsFor(makeGateways(3)...), ethUnit("1", 5))
	assert.ErrorIs(t, err, domain.ErrInvalidGroupSize)

	_, err = c.CreateUnit(context.Background(), accountsFor(makeGateways(2)...), ethUnit("0", 5))
	assert.ErrorIs(t, err, domain.ErrInvalidUnit)
}

func TestCreateUnit_RejectsRepeatedAccount(t *testing.T) {
	gw := newFakeGateway("0xAbC0000000000000000000000000000000000001")
	c, _ := newTestCoordinator(gw)

	accs := accountsFor(gw, gw)
	accs[1].Address = strings.ToLower(accs[1].Address)
	_, err := c.CreateUnit(context.Background(), accs, ethUnit("1", 5))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, gw.orderCount())
	assert.Zero(t, gw.leverageCalls)

	err = c.CloseUnit(context.Background(), accs, "ETH")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreateUnit_TimedOutLegRollsBack(t *testing.T) {
	gws := makeGateways(2)
	gws[1].blockOrder = true
	f := newFakeFactory(gws...)
	cfg := DefaultLegConfig()
	cfg.CallTimeout = 50 * time.Millisecond
	c := NewCoordinator(f, NewLegExecutor(cfg, testLogger()), allocator.NewSeeded(allocator.DefaultConfig(), 7), testLogger())

	res, err := c.CreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExchangeRejected)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.True(t, gws[0].positionSize().IsZero(), "filled leg closed")
	assert.True(t, gws[1].positionSize().IsZero())
	assert.Equal(t, domain.LegCommitted, res.Legs[0].State)
	assert.Equal(t, domain.LegFailed, res.Legs[1].State)
}

func TestCreateUnit_SizeRoundsToZero(t *testing.T) {
	gws := makeGateways(4)
	c, _ := newTestCoordinator(gws...)

	u := ethUnit("0.01", 1)
	u.SizePrecision = 2
	_, err := c.CreateUnit(context.Background(), accountsFor(gws...), u)
	assert.ErrorIs(t, err, domain.ErrInvalidUnit)
	for _, gw := range gws {
		assert.Zero(t, gw.orderCount())
	}
}

func TestCloseUnit_NoPositionPlacesNoOrder(t *testing.T) {
	gws := makeGateways(2)
	c, _ := newTestCoordinator(gws...)

	require.NoError(t, c.CloseUnit(context.Background(), accountsFor(gws...), "ETH"))
	assert.Zero(t, gws[0].orderCount())
	assert.Zero(t, gws[1].orderCount())
}

func TestCloseUnit_ClosesResidual(t *testing.T) {
	gws := makeGateways(2)
	gws[0].setPosition("ETH", "1")
	gws[0].fills = []decimal.Decimal{decimal.RequireFromString("0.6")}
	gws[1].setPosition("ETH", "-1")
	c, _ := newTestCoordinator(gws...)

	require.NoError(t, c.CloseUnit(context.Background(), accountsFor(gws...), "ETH"))
	orders := gws[0].ordersCopy()
	require.Len(t, orders, 2)
	assert.True(t, decimal.NewFromInt(1).Equal(orders[0].Size))
	assert.True(t, decimal.RequireFromString("0.4").Equal(orders[1].Size))
	assert.False(t, orders[0].IsBuy)
	assert.True(t, orders[0].ReduceOnly)
	assert.True(t, gws[0].positionSize().IsZero())

	short := gws[1].ordersCopy()
	require.Len(t, short, 1)
	assert.True(t, short[0].IsBuy)
}

func TestCloseUnit_ExhaustsAttempts(t *testing.T) {
	gws := makeGateways(2)
	gws[0].setPosition("ETH", "10")
	capFill := decimal.RequireFromString("0.1")
	gws[0].fillCap = &capFill
	c, _ := newTestCoordinator(gws...)

	err := c.CloseUnit(context.Background(), accountsFor(gws...), "ETH")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCloseIncomplete)
	assert.Contains(t, err.Error(), gws[0].addr)
	assert.Equal(t, DefaultLegConfig().CloseMaxAttempts, gws[0].orderCount())
	assert.True(t, decimal.RequireFromString("9.5").Equal(gws[0].positionSize()))
}

func TestCloseAndCreateUnit_StopsOnCloseFailure(t *testing.T) {
	gws := makeGateways(2)
	gws[0].setPosition("ETH", "3")
	gws[0].orderErr = errors.New("exchange down")
	c, _ := newTestCoordinator(gws...)

	_, err := c.CloseAndCreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	assert.ErrorIs(t, err, domain.ErrCloseIncomplete)
	assert.Zero(t, gws[1].orderCount(), "nothing opened")
	assert.Zero(t, gws[1].leverageCalls)
}

func TestCloseAndCreateUnit_Recreates(t *testing.T) {
	gws := makeGateways(2)
	gws[0].setPosition("ETH", "2")
	gws[1].setPosition("ETH", "-2")
	c, _ := newTestCoordinator(gws...)

	_, err := c.CloseAndCreateUnit(context.Background(), accountsFor(gws...), ethUnit("1", 5))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(gws[0].positionSize()))
	assert.True(t, decimal.NewFromInt(-5).Equal(gws[1].positionSize()))
}

func TestGroupStates(t *testing.T) {
	gws := makeGateways(2)
	gws[1].setPosition("BTC", "0.5")
	c, _ := newTestCoordinator(gws...)

	states, err := c.GroupStates(context.Background(), accountsFor(gws...))
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "acc0", states[0].Name)
	assert.Empty(t, states[0].Positions)
	require.Len(t, states[1].Positions, 1)
	assert.Equal(t, "BTC", states[1].Positions[0].Asset)
}
