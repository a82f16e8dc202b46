// internal/util/errors.go
package util

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Common application-specific errors.
var (
	ErrNotFound                = errors.New("resource not found")
	ErrInvalidInput            = errors.New("invalid input provided")
	ErrInvalidAmount           = errors.New("amount must be positive with at most 4 decimal places")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrAccountNotFound         = errors.New("account not found")
	ErrTreasuryNotFound        = errors.New("system treasury account not found")
	ErrAssetTypeNotFound       = errors.New("asset type not found")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrDuplicateEntry          = errors.New("duplicate entry")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	ErrIdempotencyInProgress   = errors.New("a request with this idempotency key is already in progress")
	ErrLockTimeout             = errors.New("timed out waiting for account lock")
	ErrTreasuryOverdraft       = errors.New("treasury balance would go negative")
	ErrUnbalancedTransaction   = errors.New("ledger entries do not sum to zero")
)

// IsError reports whether any error in err's chain matches target.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// InsufficientBalanceError is returned when a debit exceeds the balance observed under lock.
type InsufficientBalanceError struct {
	AccountID   int64
	AssetTypeID int64
	Balance     decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s, need %s", e.Balance.StringFixed(4), e.Requested.StringFixed(4))
}

// Shortfall is the amount missing to cover the request.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Balance)
}

// Is makes errors.Is(err, ErrInsufficientBalance) hold for this type.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
