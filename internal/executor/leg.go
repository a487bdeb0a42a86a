package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
	"github.com/BeerCodeIndustry/hyperliquid/internal/metrics"
	"github.com/BeerCodeIndustry/hyperliquid/internal/numeric"
)

// LegConfig holds the order parameters shared by every leg.
type LegConfig struct {
	Slippage         decimal.Decimal
	Fees             decimal.Decimal
	BalanceFloor     decimal.Decimal
	TimeInForce      domain.TimeInForce
	LeverageCross    bool
	CloseMaxAttempts int
	// CallTimeout bounds every single exchange call.
	CallTimeout time.Duration
}

// DefaultLegConfig returns the standard market-order parameters.
func DefaultLegConfig() LegConfig {
	return LegConfig{
		Slippage:         decimal.RequireFromString("0.001"),
		Fees:             decimal.RequireFromString("0.000336"),
		BalanceFloor:     decimal.Zero,
		TimeInForce:      domain.TifFrontendMarket,
		CloseMaxAttempts: 5,
		CallTimeout:      10 * time.Second,
	}
}

// LegExecutor runs the order lifecycle of a single account.
type LegExecutor struct {
	cfg    LegConfig
	logger *slog.Logger
}

// NewLegExecutor creates a LegExecutor.
func NewLegExecutor(cfg LegConfig, logger *slog.Logger) *LegExecutor {
	if cfg.CloseMaxAttempts < 1 {
		cfg.CloseMaxAttempts = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &LegExecutor{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "leg_executor")),
	}
}

// RequiredBalance is the free balance needed to open size at mid:
//
//	size·(1−fees)·mid·(1+slippage)/leverage + floor
func (e *LegExecutor) RequiredBalance(size, mid decimal.Decimal, leverage int) decimal.Decimal {
	one := decimal.NewFromInt(1)
	return size.
		Mul(one.Sub(e.cfg.Fees)).
		Mul(mid).
		Mul(one.Add(e.cfg.Slippage)).
		Div(decimal.NewFromInt(int64(leverage))).
		Add(e.cfg.BalanceFloor)
}

// CheckBalance fails with InsufficientBalance when the account cannot fund
// size at the current mid price.
func (e *LegExecutor) CheckBalance(ctx context.Context, gw domain.ExchangeGateway, asset string, size decimal.Decimal, leverage int) error {
	mid, err := e.midPrice(ctx, gw, asset)
	if err != nil {
		return rejected(gw, asset, "mid price query failed", err)
	}
	free, err := e.balance(ctx, gw)
	if err != nil {
		return rejected(gw, asset, "balance query failed", err)
	}

	need := e.RequiredBalance(size, mid, leverage)
	if free.LessThan(need) {
		return domain.NewUnitError(domain.KindInsufficientBalance, asset,
			fmt.Sprintf("free %s, required %s", free.StringFixed(2), need.StringFixed(2)), nil, gw.Address())
	}
	return nil
}

// SyncLeverage sets the asset leverage. Failures are logged and ignored:
// the exchange keeps the previous leverage and the order still goes through.
func (e *LegExecutor) SyncLeverage(ctx context.Context, gw domain.ExchangeGateway, asset string, leverage int) bool {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()

	err := gw.UpdateLeverage(cctx, asset, leverage, e.cfg.LeverageCross)
	metrics.ObserveCall("update_leverage", err)
	if err != nil {
		e.logger.Warn("leverage update failed",
			slog.String("account", gw.Address()),
			slog.String("asset", asset),
			slog.Int("leverage", leverage),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// CheckNoPosition fails with UnitAlreadyExists when the account holds a
// position in asset.
func (e *LegExecutor) CheckNoPosition(ctx context.Context, gw domain.ExchangeGateway, asset string) error {
	pos, err := e.position(ctx, gw, asset)
	if err != nil {
		return rejected(gw, asset, "position query failed", err)
	}
	if pos != nil {
		return domain.NewUnitError(domain.KindUnitAlreadyExists, asset,
			fmt.Sprintf("open position %s", pos.Size), nil, gw.Address())
	}
	return nil
}

// RunCreateLeg opens size of asset on one account and verifies the fill.
// A fill that does not match size exactly is closed again and reported as
// PartialFill.
func (e *LegExecutor) RunCreateLeg(ctx context.Context, gw domain.ExchangeGateway, asset string, size decimal.Decimal, leverage int, isBuy bool) (out domain.LegOutcome) {
	out = domain.LegOutcome{Account: gw.Address(), RequestedSize: size, State: domain.LegIdle}
	log := e.logger.With(
		slog.String("account", gw.Address()),
		slog.String("asset", asset),
		slog.Bool("is_buy", isBuy),
		slog.String("size", size.String()),
	)
	defer func() {
		metrics.Legs.WithLabelValues("create", string(out.State)).Inc()
	}()
	fail := func(err error) domain.LegOutcome {
		out.State = domain.LegFailed
		out.Err = err
		log.Error("create leg failed", slog.String("error", err.Error()))
		return out
	}

	if err := e.CheckBalance(ctx, gw, asset, size, leverage); err != nil {
		return fail(err)
	}
	out.State = domain.LegBalanceChecked

	e.SyncLeverage(ctx, gw, asset, leverage)
	out.State = domain.LegLeverageSynced

	if err := e.CheckNoPosition(ctx, gw, asset); err != nil {
		return fail(err)
	}
	out.State = domain.LegPositionVerifiedAbsent

	req, err := e.marketOrder(ctx, gw, asset, size, isBuy, false)
	if err != nil {
		return fail(rejected(gw, asset, "order pricing failed", err))
	}
	fill, err := e.placeOrder(ctx, gw, req)
	if err != nil {
		return fail(rejected(gw, asset, "", err))
	}
	out.State = domain.LegOrderPlaced
	out.FilledSize = fill.TotalSize
	log.Info("order filled",
		slog.Int64("oid", fill.OrderID),
		slog.String("filled", fill.TotalSize.String()),
		slog.String("avg_px", fill.AvgPrice.String()),
	)

	pos, err := e.position(ctx, gw, asset)
	got := decimal.Zero
	if err == nil && pos != nil {
		got = pos.AbsSize()
		out.FinalPosition = pos
	}
	if err == nil && got.Equal(size) {
		out.State = domain.LegFillVerified
		log.Debug("fill verified", slog.String("position", pos.Size.String()))
		out.State = domain.LegCommitted
		return out
	}

	out.State = domain.LegCompensatingClose
	reason := fmt.Sprintf("requested %s, position %s", size, got)
	if err != nil {
		reason = "fill verification query failed"
	}
	log.Warn("fill mismatch, closing leg", slog.String("reason", reason))

	cause := err
	if closeErr := e.RunCloseLeg(ctx, gw, asset); closeErr != nil {
		cause = closeErr
	}
	return fail(domain.NewUnitError(domain.KindPartialFill, asset, reason, cause, gw.Address()))
}

// RunCloseLeg flattens the account's position in asset. No position is a
// success with no order. Residuals left by partial fills are re-queried and
// closed again, up to CloseMaxAttempts orders.
func (e *LegExecutor) RunCloseLeg(ctx context.Context, gw domain.ExchangeGateway, asset string) error {
	log := e.logger.With(slog.String("account", gw.Address()), slog.String("asset", asset))

	var (
		orders  int
		lastErr error
	)
	for attempt := 0; attempt < e.cfg.CloseMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		pos, err := e.position(ctx, gw, asset)
		if err != nil {
			lastErr = err
			continue
		}
		if pos == nil {
			e.finishClose(orders, domain.LegCommitted)
			return nil
		}

		want := pos.AbsSize()
		req, err := e.marketOrder(ctx, gw, asset, want, !pos.IsLong(), true)
		if err != nil {
			lastErr = err
			continue
		}
		orders++
		fill, err := e.placeOrder(ctx, gw, req)
		if err != nil {
			lastErr = err
			log.Warn("close order failed", slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
			continue
		}
		if fill.TotalSize.Equal(want) {
			log.Info("position closed", slog.String("size", want.String()), slog.Int("orders", orders))
			e.finishClose(orders, domain.LegCommitted)
			return nil
		}
		lastErr = fmt.Errorf("filled %s of %s", fill.TotalSize, want)
		log.Warn("close partially filled", slog.Int("attempt", attempt+1), slog.String("error", lastErr.Error()))
	}

	e.finishClose(orders, domain.LegFailed)
	return domain.NewUnitError(domain.KindCloseIncomplete, asset,
		fmt.Sprintf("position still open after %d attempts", e.cfg.CloseMaxAttempts), lastErr, gw.Address())
}

func (e *LegExecutor) finishClose(orders int, state domain.LegState) {
	metrics.CloseAttempts.Observe(float64(orders))
	metrics.Legs.WithLabelValues("close", string(state)).Inc()
}

// marketOrder builds a limit order priced through the book by the slippage
// bound.
func (e *LegExecutor) marketOrder(ctx context.Context, gw domain.ExchangeGateway, asset string, size decimal.Decimal, isBuy, reduceOnly bool) (domain.OrderRequest, error) {
	meta, err := e.assetInfo(ctx, gw, asset)
	if err != nil {
		return domain.OrderRequest{}, err
	}
	mid, err := e.midPrice(ctx, gw, asset)
	if err != nil {
		return domain.OrderRequest{}, err
	}
	return domain.OrderRequest{
		Asset:       asset,
		IsBuy:       isBuy,
		Size:        size,
		LimitPrice:  numeric.SlippagePrice(mid, isBuy, e.cfg.Slippage, meta.SizeDecimals),
		ReduceOnly:  reduceOnly,
		TimeInForce: e.cfg.TimeInForce,
	}, nil
}

// ---------------------------------------------------------------------------
// Gateway calls, each bounded by CallTimeout.
// ---------------------------------------------------------------------------

func (e *LegExecutor) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.CallTimeout)
}

func (e *LegExecutor) midPrice(ctx context.Context, gw domain.ExchangeGateway, asset string) (decimal.Decimal, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	px, err := gw.MidPrice(ctx, asset)
	metrics.ObserveCall("mid_price", err)
	return px, err
}

func (e *LegExecutor) balance(ctx context.Context, gw domain.ExchangeGateway) (decimal.Decimal, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	b, err := gw.Balance(ctx)
	metrics.ObserveCall("balance", err)
	return b, err
}

func (e *LegExecutor) position(ctx context.Context, gw domain.ExchangeGateway, asset string) (*domain.Position, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	p, err := gw.Position(ctx, asset)
	metrics.ObserveCall("position", err)
	return p, err
}

func (e *LegExecutor) assetInfo(ctx context.Context, gw domain.ExchangeGateway, asset string) (domain.AssetMeta, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	m, err := gw.AssetInfo(ctx, asset)
	metrics.ObserveCall("asset_info", err)
	return m, err
}

func (e *LegExecutor) placeOrder(ctx context.Context, gw domain.ExchangeGateway, req domain.OrderRequest) (domain.FilledOrder, error) {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()
	f, err := gw.PlaceOrder(ctx, req)
	metrics.ObserveCall("place_order", err)
	return f, err
}

func rejected(gw domain.ExchangeGateway, asset, reason string, err error) error {
	return domain.NewUnitError(domain.KindExchangeRejected, asset, reason, err, gw.Address())
}
