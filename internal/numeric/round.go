// Package numeric holds the decimal rounding rules the exchange enforces on
// order prices and sizes.
package numeric

import "github.com/shopspring/decimal"

const (
	// PriceSigFigs is the maximum number of significant figures in a price.
	PriceSigFigs = 5
	// maxPerpDecimals bounds price decimals together with szDecimals.
	maxPerpDecimals = 6
)

var integerPriceFloor = decimal.NewFromInt(100_000)

// RoundSigFigs rounds d to n significant figures.
func RoundSigFigs(d decimal.Decimal, n int32) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	msd := int32(d.NumDigits()) + d.Exponent()
	return d.Round(n - msd)
}

// RoundPrice applies the perpetual price rule: at most five significant
// figures and at most 6-szDecimals decimals. Prices at or above 100000 are
// rounded to an integer.
func RoundPrice(px decimal.Decimal, szDecimals int32) decimal.Decimal {
	if px.Abs().GreaterThanOrEqual(integerPriceFloor) {
		return px.Round(0)
	}
	out := RoundSigFigs(px, PriceSigFigs)
	maxDecimals := maxPerpDecimals - szDecimals
	if maxDecimals < 0 {
		maxDecimals = 0
	}
	return out.Round(maxDecimals)
}

// RoundSize rounds an order size to the asset's size precision.
func RoundSize(sz decimal.Decimal, szDecimals int32) decimal.Decimal {
	return sz.Round(szDecimals)
}

// SlippagePrice shifts mid by slippage against the taker (up for buys, down
// for sells) and rounds to a valid price.
func SlippagePrice(mid decimal.Decimal, isBuy bool, slippage decimal.Decimal, szDecimals int32) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(slippage)
	if isBuy {
		factor = decimal.NewFromInt(1).Add(slippage)
	}
	return RoundPrice(mid.Mul(factor), szDecimals)
}

// WireString formats d the way the exchange API expects: no exponent and
// no trailing zeros.
func WireString(d decimal.Decimal) string {
	return d.String()
}
