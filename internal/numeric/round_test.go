package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRoundSigFigs(t *testing.T) {
	tests := []struct {
		in   string
		n    int32
		want string
	}{
		{"123.456", 5, "123.46"},
		{"0.0012345678", 5, "0.0012346"},
		{"98765.4321", 5, "98765"},
		{"1.5", 5, "1.5"},
		{"0", 5, "0"},
		{"-42.123456", 5, "-42.123"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := RoundSigFigs(d(tt.in), tt.n)
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		name       string
		px         string
		szDecimals int32
		want       string
	}{
		{"btc integer", "104321.77", 5, "104322"},
		{"eth five sig figs", "3456.789", 4, "3456.8"},
		{"decimal cap", "1.234567", 3, "1.235"},
		{"small coin", "0.000123456", 0, "0.000123"},
		{"exact", "25.5", 2, "25.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundPrice(d(tt.px), tt.szDecimals)
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestSlippagePrice(t *testing.T) {
	slip := d("0.001")
	buy := SlippagePrice(d("2000"), true, slip, 4)
	sell := SlippagePrice(d("2000"), false, slip, 4)
	assert.True(t, d("2002").Equal(buy), "buy %s", buy)
	assert.True(t, d("1998").Equal(sell), "sell %s", sell)
}

func TestRoundSize(t *testing.T) {
	assert.Equal(t, "0.333", RoundSize(d("0.33333"), 3).String())
	assert.Equal(t, "5", RoundSize(d("5.0000"), 2).String())
}
