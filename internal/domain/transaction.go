// internal/domain/transaction.go
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal" // For precise monetary calculations

	"closedloop-wallet/internal/util"
)

// MaxIdempotencyKeyLength matches the transactions.idempotency_key column width, in characters.
const MaxIdempotencyKeyLength = 128

// ValidateIdempotencyKey accepts the empty key (no idempotency) or a non-blank key that fits the column.
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return nil
	}
	if strings.TrimSpace(key) == "" || utf8.RuneCountInString(key) > MaxIdempotencyKeyLength {
		return util.ErrInvalidInput
	}
	return nil
}

// TransactionKind defines the money movement a transaction records.
type TransactionKind string

const (
	TransactionKindTopUp TransactionKind = "TOP_UP"
	TransactionKindBonus TransactionKind = "BONUS"
	TransactionKindSpend TransactionKind = "SPEND"
)

// ParseTransactionKind converts a boundary value into a TransactionKind, rejecting unknown values.
func ParseTransactionKind(s string) (TransactionKind, error) {
	switch k := TransactionKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case TransactionKindTopUp, TransactionKindBonus, TransactionKindSpend:
		return k, nil
	default:
		return "", fmt.Errorf("unknown transaction kind %q", s)
	}
}

// DebitsUser reports whether the kind moves value out of the user account.
func (k TransactionKind) DebitsUser() bool {
	return k == TransactionKindSpend
}

// Transaction is the immutable header of a balanced set of ledger entries.
type Transaction struct {
	ID             int64           `db:"id" json:"id"`                           // Primary key, BIGSERIAL in DB
	Kind           TransactionKind `db:"kind" json:"kind"`                       // TOP_UP, BONUS or SPEND
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotency_key"` // Globally unique when present
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`           // Set by the database on insert
	Entries        []LedgerEntry   `db:"-" json:"entries,omitempty"`             // Loaded on demand
}

// LedgerEntry is one signed line item. Positive amount = credit, negative = debit.
type LedgerEntry struct {
	ID            int64           `db:"id" json:"id"`
	TransactionID int64           `db:"transaction_id" json:"transaction_id"`
	AccountID     int64           `db:"account_id" json:"account_id"`
	AssetTypeID   int64           `db:"asset_type_id" json:"asset_type_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"` // NUMERIC(20, 4) in DB
}

// AccountEntry is a ledger entry joined with its transaction header, used for history views.
type AccountEntry struct {
	LedgerEntry
	TransactionKind TransactionKind `db:"transaction_kind" json:"transaction_kind"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}
