package hyperliquid

import (
	"encoding/json"

	"github.com/BeerCodeIndustry/hyperliquid/internal/crypto"
)

// ---------------------------------------------------------------------------
// /info
// ---------------------------------------------------------------------------

type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// ClearinghouseState is the perpetuals account summary of one user.
type ClearinghouseState struct {
	MarginSummary      MarginSummary   `json:"marginSummary"`
	CrossMarginSummary MarginSummary   `json:"crossMarginSummary"`
	Withdrawable       string          `json:"withdrawable"`
	AssetPositions     []AssetPosition `json:"assetPositions"`
	Time               int64           `json:"time"`
}

// MarginSummary aggregates account value and margin.
type MarginSummary struct {
	AccountValue    string `json:"accountValue"`
	TotalMarginUsed string `json:"totalMarginUsed"`
	TotalNtlPos     string `json:"totalNtlPos"`
	TotalRawUSD     string `json:"totalRawUsd"`
}

// AssetPosition wraps a position with its margin mode ("oneWay").
type AssetPosition struct {
	Type     string       `json:"type"`
	Position PositionData `json:"position"`
}

// PositionData is a single open perpetual position. Szi is signed.
type PositionData struct {
	Coin           string   `json:"coin"`
	Szi            string   `json:"szi"`
	EntryPx        string   `json:"entryPx"`
	PositionValue  string   `json:"positionValue"`
	UnrealizedPnl  string   `json:"unrealizedPnl"`
	ReturnOnEquity string   `json:"returnOnEquity"`
	MarginUsed     string   `json:"marginUsed"`
	LiquidationPx  string   `json:"liquidationPx"`
	Leverage       Leverage `json:"leverage"`
}

// Leverage is the position's margin mode and multiplier.
type Leverage struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// Meta is the perpetuals universe.
type Meta struct {
	Universe []AssetInfo `json:"universe"`
}

// AssetInfo is one entry of the universe. Its index is the asset id used in
// exchange actions.
type AssetInfo struct {
	Name         string `json:"name"`
	SzDecimals   int32  `json:"szDecimals"`
	MaxLeverage  int    `json:"maxLeverage"`
	OnlyIsolated bool   `json:"onlyIsolated,omitempty"`
	IsDelisted   bool   `json:"isDelisted,omitempty"`
}

// ---------------------------------------------------------------------------
// /exchange
// ---------------------------------------------------------------------------

// Field order matters: actions are hashed with msgpack in declaration order.

type orderAction struct {
	Type     string      `json:"type" msgpack:"type"`
	Orders   []orderWire `json:"orders" msgpack:"orders"`
	Grouping string      `json:"grouping" msgpack:"grouping"`
}

type orderWire struct {
	Asset      int           `json:"a" msgpack:"a"`
	IsBuy      bool          `json:"b" msgpack:"b"`
	LimitPx    string        `json:"p" msgpack:"p"`
	Size       string        `json:"s" msgpack:"s"`
	ReduceOnly bool          `json:"r" msgpack:"r"`
	OrderType  orderTypeWire `json:"t" msgpack:"t"`
}

type orderTypeWire struct {
	Limit *limitWire `json:"limit,omitempty" msgpack:"limit,omitempty"`
}

type limitWire struct {
	Tif string `json:"tif" msgpack:"tif"`
}

type updateLeverageAction struct {
	Type     string `json:"type" msgpack:"type"`
	Asset    int    `json:"asset" msgpack:"asset"`
	IsCross  bool   `json:"isCross" msgpack:"isCross"`
	Leverage int    `json:"leverage" msgpack:"leverage"`
}

type exchangeRequest struct {
	Action       any              `json:"action"`
	Nonce        uint64           `json:"nonce"`
	Signature    crypto.Signature `json:"signature"`
	VaultAddress *string          `json:"vaultAddress"`
}

// exchangeResponse carries either an error string or a typed payload in
// Response, depending on Status.
type exchangeResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type orderResponseData struct {
	Type string `json:"type"`
	Data struct {
		Statuses []orderStatus `json:"statuses"`
	} `json:"data"`
}

type orderStatus struct {
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting,omitempty"`
	Filled *struct {
		TotalSz string `json:"totalSz"`
		AvgPx   string `json:"avgPx"`
		Oid     int64  `json:"oid"`
	} `json:"filled,omitempty"`
	Error string `json:"error,omitempty"`
}

// UnmarshalJSON accepts plain string statuses such as "waitingForFill".
func (s *orderStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var plain string
		if err := json.Unmarshal(b, &plain); err != nil {
			return err
		}
		s.Error = "order status " + plain
		return nil
	}
	type raw orderStatus
	return json.Unmarshal(b, (*raw)(s))
}
