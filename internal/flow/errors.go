package flow

import (
	"errors"
	"fmt"
	"time"

	"chatwallet/internal/store"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation is malformed input; the step re-prompts without advancing.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidPin is a wrong PIN; the PIN step re-prompts while budget remains.
	ErrInvalidPin          = errors.New("invalid pin")
	ErrAccountLocked       = errors.New("account locked")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNotFound is a missing session or account; the conversation starts over.
	ErrNotFound = store.ErrNotFound
)

// LockedError reports how long an account stays locked.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for %s", e.Remaining.Round(time.Second))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// BalanceError is an amount above the live balance of the wallet.
type BalanceError struct {
	Available decimal.Decimal
	Symbol    string
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("available balance is %s %s", e.Available, e.Symbol)
}

func (e *BalanceError) Unwrap() error { return ErrInsufficientBalance }

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
