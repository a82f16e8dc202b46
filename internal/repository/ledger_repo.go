// internal/repository/ledger_repo.go
package repository

import (
	"context"

	"closedloop-wallet/internal/domain"
)

// LedgerRepository defines the interface for the append-only transaction and entry store.
type LedgerRepository interface {
	// FindTransactionByIdempotencyKey returns the transaction recorded under key.
	FindTransactionByIdempotencyKey(ctx context.Context, q DBExecutor, key string) (*domain.Transaction, error)
	// CreateTransactionWithEntries persists the header and all postings atomically.
	// The caller guarantees the postings are balanced.
	CreateTransactionWithEntries(ctx context.Context, q DBExecutor, kind domain.TransactionKind, idempotencyKey *string, postings []domain.Posting) (*domain.Transaction, error)
	// GetTransactionByID returns the header with its entries ordered by entry id.
	GetTransactionByID(ctx context.Context, q DBExecutor, id int64) (*domain.Transaction, error)
	// ListEntriesByAccount returns a page of the account's entries, newest first, and the total count.
	// A nil assetTypeID lists every asset type.
	ListEntriesByAccount(ctx context.Context, q DBExecutor, accountID int64, assetTypeID *int64, limit, offset int) ([]domain.AccountEntry, int64, error)
	// HasEntries reports whether any ledger entry exists.
	HasEntries(ctx context.Context, q DBExecutor) (bool, error)
}
