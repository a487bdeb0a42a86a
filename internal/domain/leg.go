package domain

import "github.com/shopspring/decimal"

// LegState is the lifecycle state of one account's leg.
type LegState string

const (
	LegIdle                   LegState = "idle"
	LegBalanceChecked         LegState = "balance_checked"
	LegLeverageSynced         LegState = "leverage_synced"
	LegPositionVerifiedAbsent LegState = "position_verified_absent"
	LegOrderPlaced            LegState = "order_placed"
	LegFillVerified           LegState = "fill_verified"
	LegCommitted              LegState = "committed"
	LegCompensatingClose      LegState = "compensating_close"
	LegFailed                 LegState = "failed"
)

// LegOutcome is the result of running a leg for one account.
type LegOutcome struct {
	Account       string
	RequestedSize decimal.Decimal
	FilledSize    decimal.Decimal
	FinalPosition *Position
	State         LegState
	Err           error
}
