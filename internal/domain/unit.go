package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Unit is a request to open one hedged position group on a single asset.
// Size is expressed in base units before leverage is applied.
type Unit struct {
	Asset             string          `json:"asset"`
	Size              decimal.Decimal `json:"size"`
	Leverage          int             `json:"leverage"`
	SizePrecision     int32           `json:"size_decimals"`
	SmartBalanceUsage bool            `json:"smart_balance_usage"`
}

// Validate checks the unit parameters.
func (u Unit) Validate() error {
	switch {
	case u.Asset == "":
		return fmt.Errorf("%w: asset is required", ErrInvalidUnit)
	case !u.Size.IsPositive():
		return fmt.Errorf("%w: size must be positive", ErrInvalidUnit)
	case u.Leverage <= 0:
		return fmt.Errorf("%w: leverage must be positive", ErrInvalidUnit)
	case u.SizePrecision < 0:
		return fmt.Errorf("%w: size_decimals must not be negative", ErrInvalidUnit)
	}
	return nil
}

// LeveragedSize is the notional size requested across the whole unit.
func (u Unit) LeveragedSize() decimal.Decimal {
	return u.Size.Mul(decimal.NewFromInt(int64(u.Leverage)))
}

// AllocationSlot is one account's share of a unit.
type AllocationSlot struct {
	WeightPercent int  `json:"weight_percent"`
	IsFat         bool `json:"is_fat"`
}

// AllocationPlan assigns weights and directions to every account of a group.
// Slots are indexed by account position in the group.
type AllocationPlan struct {
	Slots    []AllocationSlot `json:"slots"`
	FatIsBuy bool             `json:"fat_is_buy"`
}

// IsBuy returns the trade direction of slot i.
func (p AllocationPlan) IsBuy(i int) bool {
	if p.Slots[i].IsFat {
		return p.FatIsBuy
	}
	return !p.FatIsBuy
}

// Weights returns the weights of slots with the given fatness.
func (p AllocationPlan) Weights(fat bool) []int {
	var out []int
	for _, s := range p.Slots {
		if s.IsFat == fat {
			out = append(out, s.WeightPercent)
		}
	}
	return out
}
