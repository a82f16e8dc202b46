// internal/repository/postgres/ledger_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"closedloop-wallet/internal/domain"
	"closedloop-wallet/internal/repository"
	"closedloop-wallet/internal/util"
	"closedloop-wallet/pkg/db"

	"github.com/lib/pq"
)

// IdempotencyKeyConstraint is the unique constraint PostgreSQL names for transactions.idempotency_key.
const IdempotencyKeyConstraint = "transactions_idempotency_key_key"

// LedgerRepository implements repository.LedgerRepository for PostgreSQL.
type LedgerRepository struct{}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository() repository.LedgerRepository {
	return &LedgerRepository{}
}

// FindTransactionByIdempotencyKey returns the transaction recorded under key.
func (r *LedgerRepository) FindTransactionByIdempotencyKey(ctx context.Context, q repository.DBExecutor, key string) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `SELECT id, kind, idempotency_key, created_at FROM transactions WHERE idempotency_key = $1`
	if err := q.GetContext(ctx, &tx, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find transaction by idempotency key: %w", err)
	}
	return &tx, nil
}

// CreateTransactionWithEntries inserts the header and every posting in one statement.
// PostgreSQL executes a statement atomically, so a failing entry discards the header as well,
// whether or not q is an enclosing transaction.
func (r *LedgerRepository) CreateTransactionWithEntries(
	ctx context.Context,
	q repository.DBExecutor,
	kind domain.TransactionKind,
	idempotencyKey *string,
	postings []domain.Posting,
) (*domain.Transaction, error) {
	if len(postings) == 0 {
		return nil, fmt.Errorf("failed to create transaction: %w", util.ErrUnbalancedTransaction)
	}

	accountIDs := make([]int64, len(postings))
	assetTypeIDs := make([]int64, len(postings))
	amounts := make([]string, len(postings))
	for i, p := range postings {
		accountIDs[i] = p.AccountID
		assetTypeIDs[i] = p.AssetTypeID
		amounts[i] = p.Amount.StringFixed(domain.AmountScale)
	}

	query := `
		WITH tx AS (
			INSERT INTO transactions (kind, idempotency_key)
			VALUES ($1, $2)
			RETURNING id, created_at
		), entries AS (
			INSERT INTO ledger_entries (transaction_id, account_id, asset_type_id, amount)
			SELECT tx.id, e.account_id, e.asset_type_id, e.amount
			FROM tx, unnest($3::bigint[], $4::bigint[], $5::numeric[]) WITH ORDINALITY AS e(account_id, asset_type_id, amount, ord)
			ORDER BY e.ord
			RETURNING id, transaction_id, account_id, asset_type_id, amount
		)
		SELECT e.id, e.transaction_id, e.account_id, e.asset_type_id, e.amount, tx.created_at
		FROM entries e JOIN tx ON tx.id = e.transaction_id
		ORDER BY e.id`

	var rows []insertedEntry
	err := q.SelectContext(ctx, &rows, query,
		kind,
		idempotencyKey,
		pq.Array(accountIDs),
		pq.Array(assetTypeIDs),
		pq.Array(amounts),
	)
	if err != nil {
		if db.IsUniqueViolation(err, IdempotencyKeyConstraint) {
			return nil, fmt.Errorf("failed to create transaction: %w", util.ErrDuplicateIdempotencyKey)
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	if len(rows) != len(postings) {
		return nil, fmt.Errorf("failed to create transaction: inserted %d of %d entries", len(rows), len(postings))
	}

	transaction := &domain.Transaction{
		ID:             rows[0].TransactionID,
		Kind:           kind,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      rows[0].CreatedAt,
		Entries:        make([]domain.LedgerEntry, len(rows)),
	}
	for i, row := range rows {
		transaction.Entries[i] = row.LedgerEntry
	}
	return transaction, nil
}

// insertedEntry is one row returned by the ledger write, in posting order.
type insertedEntry struct {
	domain.LedgerEntry
	CreatedAt time.Time `db:"created_at"`
}

// GetTransactionByID returns a transaction header and its entries.
func (r *LedgerRepository) GetTransactionByID(ctx context.Context, q repository.DBExecutor, id int64) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := q.GetContext(ctx, &tx, `SELECT id, kind, idempotency_key, created_at FROM transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}

	tx.Entries = []domain.LedgerEntry{}
	query := `SELECT id, transaction_id, account_id, asset_type_id, amount
              FROM ledger_entries WHERE transaction_id = $1 ORDER BY id`
	if err := q.SelectContext(ctx, &tx.Entries, query, id); err != nil {
		return nil, fmt.Errorf("failed to get entries of transaction %d: %w", id, err)
	}
	return &tx, nil
}

// ListEntriesByAccount retrieves a paginated list of entries for an account.
// It performs two queries: one for the data and one for the total count.
func (r *LedgerRepository) ListEntriesByAccount(ctx context.Context, q repository.DBExecutor, accountID int64, assetTypeID *int64, limit, offset int) ([]domain.AccountEntry, int64, error) {
	entries := []domain.AccountEntry{}

	query := `
		SELECT e.id, e.transaction_id, e.account_id, e.asset_type_id, e.amount,
		       t.kind AS transaction_kind, t.created_at
		FROM ledger_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE e.account_id = $1 AND ($2::bigint IS NULL OR e.asset_type_id = $2)
		ORDER BY e.id DESC
		LIMIT $3 OFFSET $4`
	if err := q.SelectContext(ctx, &entries, query, accountID, assetTypeID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch entries for account %d: %w", accountID, err)
	}

	var totalCount int64
	countQuery := `
		SELECT COUNT(*)
		FROM ledger_entries
		WHERE account_id = $1 AND ($2::bigint IS NULL OR asset_type_id = $2)`
	if err := q.GetContext(ctx, &totalCount, countQuery, accountID, assetTypeID); err != nil {
		return nil, 0, fmt.Errorf("failed to count entries for account %d: %w", accountID, err)
	}

	return entries, totalCount, nil
}

// HasEntries reports whether the ledger holds any entry.
func (r *LedgerRepository) HasEntries(ctx context.Context, q repository.DBExecutor) (bool, error) {
	var exists bool
	if err := q.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM ledger_entries)`); err != nil {
		return false, fmt.Errorf("failed to check ledger entries: %w", err)
	}
	return exists, nil
}
