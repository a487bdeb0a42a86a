package domain

import "github.com/shopspring/decimal"

// TimeInForce is the exchange limit-order time-in-force.
type TimeInForce string

const (
	TifGtc            TimeInForce = "Gtc"
	TifIoc            TimeInForce = "Ioc"
	TifAlo            TimeInForce = "Alo"
	TifFrontendMarket TimeInForce = "FrontendMarket"
)

// OrderRequest is a single limit order submitted on behalf of one account.
type OrderRequest struct {
	Asset       string
	IsBuy       bool
	Size        decimal.Decimal
	LimitPrice  decimal.Decimal
	ReduceOnly  bool
	TimeInForce TimeInForce
}

// FilledOrder is the immediate fill reported by the exchange.
type FilledOrder struct {
	OrderID   int64           `json:"oid"`
	TotalSize decimal.Decimal `json:"total_size"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
}

// AssetMeta is the exchange's static metadata for a perpetual asset.
type AssetMeta struct {
	Name         string `json:"name"`
	Index        int    `json:"index"`
	SizeDecimals int32  `json:"size_decimals"`
	MaxLeverage  int    `json:"max_leverage"`
}
