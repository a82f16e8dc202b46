// internal/domain/account.go
package domain

import (
	"fmt"
	"strings"
	"time"
)

// AccountKind distinguishes end-user wallets from system counterparties.
type AccountKind string

const (
	AccountKindUser   AccountKind = "USER"
	AccountKindSystem AccountKind = "SYSTEM"
)

// ParseAccountKind converts a boundary value into an AccountKind, rejecting unknown values.
func ParseAccountKind(s string) (AccountKind, error) {
	switch k := AccountKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case AccountKindUser, AccountKindSystem:
		return k, nil
	default:
		return "", fmt.Errorf("unknown account kind %q", s)
	}
}

// Account is a ledger participant. Accounts are never mutated after creation.
type Account struct {
	ID             int64       `db:"id" json:"id"`                             // Primary key, BIGSERIAL in DB
	Kind           AccountKind `db:"kind" json:"kind"`                         // USER or SYSTEM
	ExternalUserID *string     `db:"external_user_id" json:"external_user_id"` // Caller-facing id, USER accounts only
	Name           string      `db:"name" json:"name"`                         // Display name, unique among SYSTEM accounts
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`             // Timestamp of creation
}

// NewUserAccount creates a USER account bound to an external identity.
func NewUserAccount(externalUserID, name string) *Account {
	ext := externalUserID
	return &Account{
		Kind:           AccountKindUser,
		ExternalUserID: &ext,
		Name:           name,
		CreatedAt:      time.Now().UTC(),
	}
}

// NewSystemAccount creates a SYSTEM account such as the treasury.
func NewSystemAccount(name string) *Account {
	return &Account{
		Kind:      AccountKindSystem,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the identity rules for the account kind.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("account name must not be empty")
	}
	switch a.Kind {
	case AccountKindUser:
		if a.ExternalUserID == nil || strings.TrimSpace(*a.ExternalUserID) == "" {
			return fmt.Errorf("user account requires an external user id")
		}
	case AccountKindSystem:
		if a.ExternalUserID != nil {
			return fmt.Errorf("system account must not carry an external user id")
		}
	default:
		return fmt.Errorf("unknown account kind %q", a.Kind)
	}
	return nil
}
