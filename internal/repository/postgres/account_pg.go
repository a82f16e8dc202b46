// internal/repository/postgres/account_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"closedloop-wallet/internal/domain"
	"closedloop-wallet/internal/repository"
	"closedloop-wallet/internal/util"
	"closedloop-wallet/pkg/db"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, kind, external_user_id, name, created_at`

// AccountRepository implements repository.AccountRepository for PostgreSQL.
type AccountRepository struct{}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository() repository.AccountRepository {
	return &AccountRepository{}
}

// CreateAccount inserts a new account using the provided DBExecutor.
func (r *AccountRepository) CreateAccount(ctx context.Context, q repository.DBExecutor, account *domain.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
	}
	query := `INSERT INTO accounts (kind, external_user_id, name, created_at)
              VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := q.QueryRowContext(ctx, query, account.Kind, account.ExternalUserID, account.Name, account.CreatedAt).
		Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("failed to create account %q: %w", account.Name, util.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccountByID retrieves an account by its ID.
func (r *AccountRepository) GetAccountByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Account, error) {
	return r.getOne(ctx, q, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetUserByExternalID retrieves a USER account by its external identifier.
func (r *AccountRepository) GetUserByExternalID(ctx context.Context, q repository.DBExecutor, externalUserID string) (*domain.Account, error) {
	return r.getOne(ctx, q, `SELECT `+accountColumns+` FROM accounts WHERE kind = $1 AND external_user_id = $2`,
		domain.AccountKindUser, externalUserID)
}

// GetSystemByName retrieves a SYSTEM account by name.
func (r *AccountRepository) GetSystemByName(ctx context.Context, q repository.DBExecutor, name string) (*domain.Account, error) {
	return r.getOne(ctx, q, `SELECT `+accountColumns+` FROM accounts WHERE kind = $1 AND name = $2`,
		domain.AccountKindSystem, name)
}

func (r *AccountRepository) getOne(ctx context.Context, q repository.DBExecutor, query string, args ...interface{}) (*domain.Account, error) {
	var account domain.Account
	if err := q.GetContext(ctx, &account, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetBalance sums the signed ledger entries of an account for one asset type.
// The sum is read through q, so inside a transaction it sees that transaction's snapshot.
func (r *AccountRepository) GetBalance(ctx context.Context, q repository.DBExecutor, accountID, assetTypeID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1 AND asset_type_id = $2`
	if err := q.GetContext(ctx, &balance, query, accountID, assetTypeID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance for account %d asset %d: %w", accountID, assetTypeID, err)
	}
	return balance, nil
}

// LockAccountsForUpdate locks the given accounts with SELECT ... FOR UPDATE in ascending id order.
// Every caller locks in the same global order, so two units of work contending for the same
// accounts can never wait on each other in a cycle.
func (r *AccountRepository) LockAccountsForUpdate(ctx context.Context, q repository.DBExecutor, accountIDs []int64) ([]domain.Account, error) {
	ids := SortedUniqueIDs(accountIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	accounts := make([]domain.Account, 0, len(ids))
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	if err := q.SelectContext(ctx, &accounts, query, pq.Array(ids)); err != nil {
		if db.IsLockTimeout(err) {
			return nil, fmt.Errorf("failed to lock accounts %v: %w", ids, util.ErrLockTimeout)
		}
		return nil, fmt.Errorf("failed to lock accounts %v: %w", ids, err)
	}
	if len(accounts) != len(ids) {
		return nil, fmt.Errorf("locked %d of %d accounts %v: %w", len(accounts), len(ids), ids, util.ErrAccountNotFound)
	}
	return accounts, nil
}

// SortedUniqueIDs returns the distinct ids in ascending order.
func SortedUniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
