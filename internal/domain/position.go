package domain

import "github.com/shopspring/decimal"

// Position is an open perpetual position. Size is signed: positive is long.
type Position struct {
	Asset            string          `json:"asset"`
	Size             decimal.Decimal `json:"size"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	PositionValue    decimal.Decimal `json:"position_value"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	MarginUsed       decimal.Decimal `json:"margin_used"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	Leverage         int             `json:"leverage"`
	LeverageType     string          `json:"leverage_type"`
}

// AbsSize returns the unsigned position size.
func (p Position) AbsSize() decimal.Decimal { return p.Size.Abs() }

// IsLong reports whether the position is long.
func (p Position) IsLong() bool { return p.Size.IsPositive() }

// AccountState is an account's margin summary and open positions.
type AccountState struct {
	Address         string          `json:"address"`
	Name            string          `json:"name,omitempty"`
	AccountValue    decimal.Decimal `json:"account_value"`
	TotalMarginUsed decimal.Decimal `json:"total_margin_used"`
	Withdrawable    decimal.Decimal `json:"withdrawable"`
	Positions       []Position      `json:"positions"`
}

// FreeBalance is the account value not tied up as margin.
func (s AccountState) FreeBalance() decimal.Decimal {
	return s.AccountValue.Sub(s.TotalMarginUsed)
}

// Position returns the open position for asset, if any.
func (s AccountState) Position(asset string) *Position {
	for i := range s.Positions {
		if s.Positions[i].Asset == asset && !s.Positions[i].Size.IsZero() {
			p := s.Positions[i]
			return &p
		}
	}
	return nil
}
