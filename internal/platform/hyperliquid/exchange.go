package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/BeerCodeIndustry/hyperliquid/internal/domain"
	"github.com/BeerCodeIndustry/hyperliquid/internal/numeric"
)

// ErrNotFilled is returned when an order was accepted but did not fill
// immediately.
var ErrNotFilled = errors.New("hyperliquid: order not filled")

// PlaceOrder submits a single limit order for the asset with universe index
// assetIndex and returns its immediate fill.
func (c *Client) PlaceOrder(ctx context.Context, assetIndex int, req domain.OrderRequest) (domain.FilledOrder, error) {
	tif := req.TimeInForce
	if tif == "" {
		tif = domain.TifIoc
	}
	action := orderAction{
		Type: "order",
		Orders: []orderWire{{
			Asset:      assetIndex,
			IsBuy:      req.IsBuy,
			LimitPx:    numeric.WireString(req.LimitPrice),
			Size:       numeric.WireString(req.Size),
			ReduceOnly: req.ReduceOnly,
			OrderType:  orderTypeWire{Limit: &limitWire{Tif: string(tif)}},
		}},
		Grouping: "na",
	}

	resp, err := c.postExchange(ctx, action)
	if err != nil {
		return domain.FilledOrder{}, fmt.Errorf("hyperliquid: place order %s: %w", req.Asset, err)
	}

	var data orderResponseData
	if err := json.Unmarshal(resp.Response, &data); err != nil {
		return domain.FilledOrder{}, fmt.Errorf("hyperliquid: decode order statuses: %w", err)
	}
	if len(data.Data.Statuses) == 0 {
		return domain.FilledOrder{}, fmt.Errorf("hyperliquid: place order %s: empty status list", req.Asset)
	}

	st := data.Data.Statuses[0]
	switch {
	case st.Error != "":
		return domain.FilledOrder{}, fmt.Errorf("hyperliquid: place order %s: %w: %s", req.Asset, domain.ErrInvalidOrder, st.Error)
	case st.Filled != nil:
		total, err := decimal.NewFromString(st.Filled.TotalSz)
		if err != nil {
			return domain.FilledOrder{}, fmt.Errorf("hyperliquid: parse totalSz %q: %w", st.Filled.TotalSz, err)
		}
		avg, _ := decimal.NewFromString(st.Filled.AvgPx)
		return domain.FilledOrder{OrderID: st.Filled.Oid, TotalSize: total, AvgPrice: avg}, nil
	case st.Resting != nil:
		return domain.FilledOrder{OrderID: st.Resting.Oid}, fmt.Errorf("%w: %s order %d is resting", ErrNotFilled, req.Asset, st.Resting.Oid)
	default:
		return domain.FilledOrder{}, fmt.Errorf("%w: %s", ErrNotFilled, req.Asset)
	}
}

// UpdateLeverage sets the leverage of the asset with universe index
// assetIndex.
func (c *Client) UpdateLeverage(ctx context.Context, assetIndex, leverage int, isCross bool) error {
	action := updateLeverageAction{
		Type:     "updateLeverage",
		Asset:    assetIndex,
		IsCross:  isCross,
		Leverage: leverage,
	}
	if _, err := c.postExchange(ctx, action); err != nil {
		return fmt.Errorf("hyperliquid: update leverage: %w", err)
	}
	return nil
}
