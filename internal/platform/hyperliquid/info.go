package hyperliquid

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// ClearinghouseState returns the perpetuals account state of user.
func (c *Client) ClearinghouseState(ctx context.Context, user string) (ClearinghouseState, error) {
	var out ClearinghouseState
	if err := c.postInfo(ctx, infoRequest{Type: "clearinghouseState", User: user}, &out); err != nil {
		return ClearinghouseState{}, fmt.Errorf("hyperliquid: clearinghouse state %s: %w", user, err)
	}
	return out, nil
}

// AllMids returns the current mid price of every asset.
func (c *Client) AllMids(ctx context.Context) (map[string]decimal.Decimal, error) {
	var raw map[string]string
	if err := c.postInfo(ctx, infoRequest{Type: "allMids"}, &raw); err != nil {
		return nil, fmt.Errorf("hyperliquid: all mids: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(raw))
	for coin, s := range raw {
		px, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		out[coin] = px
	}
	return out, nil
}

// Meta returns the perpetuals universe.
func (c *Client) Meta(ctx context.Context) (Meta, error) {
	var out Meta
	if err := c.postInfo(ctx, infoRequest{Type: "meta"}, &out); err != nil {
		return Meta{}, fmt.Errorf("hyperliquid: meta: %w", err)
	}
	return out, nil
}
