package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidOrder     = errors.New("invalid order parameters")
	ErrSigningFailed    = errors.New("signing failed")
	ErrLockHeld         = errors.New("lock already held")
	ErrUnitBusy         = errors.New("another unit operation is in progress for this account and asset")
	ErrInvalidGroupSize = errors.New("group size must be 2, 4 or 6")
	ErrInvalidUnit      = errors.New("invalid unit")
	ErrUnknownAsset     = errors.New("unknown asset")
	ErrInvalidInput     = errors.New("invalid input")
)

// Sentinels matched by errors.Is against a *UnitError of the same kind.
var (
	ErrHandlerInitFailed   = errors.New("handler init failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnitAlreadyExists   = errors.New("unit already exists")
	ErrExchangeRejected    = errors.New("exchange rejected")
	ErrPartialFill         = errors.New("partial fill")
	ErrCloseIncomplete     = errors.New("close incomplete")
	ErrLegPanic            = errors.New("leg execution panic")
)

// ErrorKind classifies unit lifecycle failures.
type ErrorKind int

const (
	KindHandlerInitFailed ErrorKind = iota + 1
	KindInsufficientBalance
	KindUnitAlreadyExists
	KindExchangeRejected
	KindPartialFill
	KindCloseIncomplete
	KindLegExecutionPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindHandlerInitFailed:
		return "handler_init_failed"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindUnitAlreadyExists:
		return "unit_already_exists"
	case KindExchangeRejected:
		return "exchange_rejected"
	case KindPartialFill:
		return "partial_fill"
	case KindCloseIncomplete:
		return "close_incomplete"
	case KindLegExecutionPanic:
		return "leg_execution_panic"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindHandlerInitFailed:
		return ErrHandlerInitFailed
	case KindInsufficientBalance:
		return ErrInsufficientBalance
	case KindUnitAlreadyExists:
		return ErrUnitAlreadyExists
	case KindExchangeRejected:
		return ErrExchangeRejected
	case KindPartialFill:
		return ErrPartialFill
	case KindCloseIncomplete:
		return ErrCloseIncomplete
	case KindLegExecutionPanic:
		return ErrLegPanic
	default:
		return nil
	}
}

// UnitError is the typed failure returned by leg executors and the
// coordinator. Accounts holds the addresses (or names) involved.
type UnitError struct {
	Kind     ErrorKind
	Accounts []string
	Asset    string
	Reason   string
	Err      error
}

// NewUnitError builds a UnitError for the given accounts.
func NewUnitError(kind ErrorKind, asset, reason string, err error, accounts ...string) *UnitError {
	return &UnitError{Kind: kind, Accounts: accounts, Asset: asset, Reason: reason, Err: err}
}

func (e *UnitError) Error() string {
	who := strings.Join(e.Accounts, " & ")
	var msg string
	switch e.Kind {
	case KindHandlerInitFailed:
		msg = fmt.Sprintf("failed to init exchange handler for %s", who)
	case KindInsufficientBalance:
		msg = fmt.Sprintf("cannot open position for %s, not enough balance, unit: %s", who, e.Asset)
	case KindUnitAlreadyExists:
		msg = fmt.Sprintf("unit already exists for %s, unit: %s", who, e.Asset)
	case KindExchangeRejected:
		msg = fmt.Sprintf("error opening positions for %s, unit: %s", who, e.Asset)
	case KindPartialFill:
		msg = fmt.Sprintf("partial fill for %s, unit: %s", who, e.Asset)
	case KindCloseIncomplete:
		msg = fmt.Sprintf("error closing unit for %s, unit: %s", who, e.Asset)
	case KindLegExecutionPanic:
		msg = fmt.Sprintf("leg execution panicked for %s, unit: %s", who, e.Asset)
	default:
		msg = fmt.Sprintf("unit error for %s, unit: %s", who, e.Asset)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnitError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *UnitError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf extracts the ErrorKind of the first UnitError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ue *UnitError
	if errors.As(err, &ue) {
		return ue.Kind, true
	}
	return 0, false
}
