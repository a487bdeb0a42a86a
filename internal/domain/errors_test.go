package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUnitErrorMessages(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindHandlerInitFailed, "failed to init exchange handler for A & B"},
		{KindInsufficientBalance, "cannot open position for A & B, not enough balance, unit: ETH"},
		{KindUnitAlreadyExists, "unit already exists for A & B, unit: ETH"},
		{KindExchangeRejected, "error opening positions for A & B, unit: ETH"},
		{KindCloseIncomplete, "error closing unit for A & B, unit: ETH"},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			err := NewUnitError(tc.kind, "ETH", "", nil, "A", "B")
			assert.Equal(t, tc.want, err.Error())
		})
	}
}

func TestUnitErrorChain(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("wrapped: %w", NewUnitError(KindPartialFill, "BTC", "requested 1, position 0.5", cause, "0xabc"))

	assert.ErrorIs(t, err, ErrPartialFill)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrCloseIncomplete)
	assert.Contains(t, err.Error(), "partial fill for 0xabc, unit: BTC: requested 1, position 0.5: connection reset")

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindPartialFill, kind)

	_, ok = KindOf(cause)
	assert.False(t, ok)
}

func TestUnitValidate(t *testing.T) {
	assert.ErrorIs(t, Unit{Size: decimal1(), Leverage: 1}.Validate(), ErrInvalidUnit)
	assert.ErrorIs(t, Unit{Asset: "ETH", Leverage: 1}.Validate(), ErrInvalidUnit)
	assert.ErrorIs(t, Unit{Asset: "ETH", Size: decimal1()}.Validate(), ErrInvalidUnit)
	assert.NoError(t, Unit{Asset: "ETH", Size: decimal1(), Leverage: 3}.Validate())
}

func decimal1() decimal.Decimal { return decimal.NewFromInt(1) }
