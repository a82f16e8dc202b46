// internal/repository/account_repo.go
package repository

import (
	"context"

	"closedloop-wallet/internal/domain"

	"github.com/shopspring/decimal"
)

// AccountRepository defines the interface for account data operations.
type AccountRepository interface {
	// CreateAccount inserts a new account and sets its ID and CreatedAt.
	CreateAccount(ctx context.Context, q DBExecutor, account *domain.Account) error
	// GetAccountByID retrieves an account by its ID.
	GetAccountByID(ctx context.Context, q DBExecutor, id int64) (*domain.Account, error)
	// GetUserByExternalID retrieves a USER account by its external identifier.
	GetUserByExternalID(ctx context.Context, q DBExecutor, externalUserID string) (*domain.Account, error)
	// GetSystemByName retrieves a SYSTEM account by name.
	GetSystemByName(ctx context.Context, q DBExecutor, name string) (*domain.Account, error)
	// GetBalance sums the signed entries of the account for one asset type; zero when there are none.
	GetBalance(ctx context.Context, q DBExecutor, accountID, assetTypeID int64) (decimal.Decimal, error)
	// LockAccountsForUpdate takes exclusive row locks on the deduplicated ids in ascending order.
	LockAccountsForUpdate(ctx context.Context, q DBExecutor, accountIDs []int64) ([]domain.Account, error)
}
