package domain

import (
	"errors"
	"fmt"
)

// Trade errors. Every engine operation fails with one of these wrapped in a *TradeError.
var (
	// ErrInvalidAmount is returned for zero, malformed or dust amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientLiquidity is returned when the curve or pool cannot supply the output.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrSlippageExceeded is returned when the output violates the caller's minimum.
	ErrSlippageExceeded = errors.New("slippage exceeded")

	// ErrStateNotFound is returned for instruments that were never initialized.
	ErrStateNotFound = errors.New("instrument state not found")

	// ErrPersistenceFailure is returned when a mutation could not be stored.
	// The in-memory state is left unchanged.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrInstrumentExists is returned when initializing an instrument twice.
	ErrInstrumentExists = errors.New("instrument already exists")

	// ErrInvalidAddress is returned for malformed instrument or wallet addresses.
	ErrInvalidAddress = errors.New("invalid address")
)

// ErrorKind is a stable name for a class of trade error.
type ErrorKind string

// Error kinds, one per sentinel.
const (
	KindNone                  ErrorKind = ""
	KindInvalidAmount         ErrorKind = "InvalidAmount"
	KindInsufficientLiquidity ErrorKind = "InsufficientLiquidity"
	KindSlippageExceeded      ErrorKind = "SlippageExceeded"
	KindStateNotFound         ErrorKind = "StateNotFound"
	KindPersistenceFailure    ErrorKind = "PersistenceFailure"
	KindInstrumentExists      ErrorKind = "InstrumentExists"
	KindInvalidAddress        ErrorKind = "InvalidAddress"
	KindInternal              ErrorKind = "Internal"
)

var kindBySentinel = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrInsufficientLiquidity, KindInsufficientLiquidity},
	{ErrSlippageExceeded, KindSlippageExceeded},
	{ErrStateNotFound, KindStateNotFound},
	{ErrPersistenceFailure, KindPersistenceFailure},
	{ErrInstrumentExists, KindInstrumentExists},
	{ErrInvalidAddress, KindInvalidAddress},
}

// KindOf maps an error to its kind. Unknown non-nil errors map to KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kindBySentinel {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// TradeError carries the failing operation and instrument around a sentinel error.
type TradeError struct {
	Op         string
	Instrument string
	Err        error
}

// Error implements error.
func (e *TradeError) Error() string {
	if e.Instrument == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Instrument, e.Err)
}

// Unwrap returns the wrapped error.
func (e *TradeError) Unwrap() error {
	return e.Err
}

// Kind returns the error kind.
func (e *TradeError) Kind() ErrorKind {
	return KindOf(e.Err)
}

// NewTradeError wraps err for op on instrument.
func NewTradeError(op, instrument string, err error) *TradeError {
	return &TradeError{Op: op, Instrument: instrument, Err: err}
}
