package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"closedloop-wallet/internal/domain"
	"closedloop-wallet/internal/repository/postgres"
	"closedloop-wallet/internal/util"
	"closedloop-wallet/pkg/db"
	"closedloop-wallet/pkg/db/dbtest"
)

func TestLedgerStoreIntegration(t *testing.T) {
	database := dbtest.Open(t)
	ctx := context.Background()
	accounts := postgres.NewAccountRepository()
	assets := postgres.NewAssetTypeRepository()
	ledger := postgres.NewLedgerRepository()

	gold, err := domain.NewAssetType("Gold Coins", "GOLD")
	require.NoError(t, err)
	require.NoError(t, assets.CreateAssetType(ctx, database, gold))

	treasury := domain.NewSystemAccount("Treasury")
	require.NoError(t, accounts.CreateAccount(ctx, database, treasury))
	alice := domain.NewUserAccount("user_alice", "Alice")
	require.NoError(t, accounts.CreateAccount(ctx, database, alice))

	t.Run("LookupsResolveByIdentity", func(t *testing.T) {
		got, err := accounts.GetSystemByName(ctx, database, "Treasury")
		require.NoError(t, err)
		assert.Equal(t, treasury.ID, got.ID)

		got, err = accounts.GetUserByExternalID(ctx, database, "user_alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, domain.AccountKindUser, got.Kind)

		_, err = accounts.GetUserByExternalID(ctx, database, "user_nobody")
		assert.ErrorIs(t, err, util.ErrAccountNotFound)

		_, err = accounts.GetAccountByID(ctx, database, 9999)
		assert.ErrorIs(t, err, util.ErrAccountNotFound)

		err = accounts.CreateAccount(ctx, database, domain.NewUserAccount("user_alice", "Alice again"))
		assert.ErrorIs(t, err, util.ErrDuplicateEntry)
	})

	t.Run("BalanceIsZeroWithoutEntries", func(t *testing.T) {
		balance, err := accounts.GetBalance(ctx, database, alice.ID, gold.ID)
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
	})

	t.Run("CreateTransactionWithEntries", func(t *testing.T) {
		key := "it-key-1"
		postings := domain.TransferPostings(treasury.ID, alice.ID, gold.ID, decimal.RequireFromString("12.3456"))
		tx, err := ledger.CreateTransactionWithEntries(ctx, database, domain.TransactionKindBonus, &key, postings)
		require.NoError(t, err)
		assert.NotZero(t, tx.ID)
		assert.False(t, tx.CreatedAt.IsZero())
		require.Len(t, tx.Entries, 2)
		assert.Less(t, tx.Entries[0].ID, tx.Entries[1].ID)
		assert.Equal(t, treasury.ID, tx.Entries[0].AccountID)

		balance, err := accounts.GetBalance(ctx, database, alice.ID, gold.ID)
		require.NoError(t, err)
		assert.Equal(t, "12.3456", balance.StringFixed(4))

		found, err := ledger.FindTransactionByIdempotencyKey(ctx, database, key)
		require.NoError(t, err)
		assert.Equal(t, tx.ID, found.ID)

		loaded, err := ledger.GetTransactionByID(ctx, database, tx.ID)
		require.NoError(t, err)
		require.Len(t, loaded.Entries, 2)
		assert.ElementsMatch(t, []int64{tx.Entries[0].ID, tx.Entries[1].ID}, []int64{loaded.Entries[0].ID, loaded.Entries[1].ID})
		sum := loaded.Entries[0].Amount.Add(loaded.Entries[1].Amount)
		assert.True(t, sum.IsZero())

		_, err = ledger.CreateTransactionWithEntries(ctx, database, domain.TransactionKindBonus, &key, postings)
		assert.ErrorIs(t, err, util.ErrDuplicateIdempotencyKey)
	})

	t.Run("FailedEntryDiscardsHeader", func(t *testing.T) {
		key := "it-key-bad-account"
		postings := domain.TransferPostings(treasury.ID, 424242, gold.ID, decimal.NewFromInt(1))
		_, err := ledger.CreateTransactionWithEntries(ctx, database, domain.TransactionKindBonus, &key, postings)
		require.Error(t, err)

		_, err = ledger.FindTransactionByIdempotencyKey(ctx, database, key)
		assert.ErrorIs(t, err, util.ErrTransactionNotFound)
	})

	t.Run("LockAccountsInAscendingOrder", func(t *testing.T) {
		tx, err := database.BeginTxx(ctx, nil)
		require.NoError(t, err)
		defer db.RollbackTx(tx)

		locked, err := accounts.LockAccountsForUpdate(ctx, tx, []int64{alice.ID, treasury.ID, alice.ID})
		require.NoError(t, err)
		require.Len(t, locked, 2)
		assert.Less(t, locked[0].ID, locked[1].ID)

		_, err = accounts.LockAccountsForUpdate(ctx, tx, []int64{alice.ID, 777777})
		assert.ErrorIs(t, err, util.ErrAccountNotFound)
	})

	t.Run("LockTimeoutIsBounded", func(t *testing.T) {
		holder, err := database.BeginTxx(ctx, nil)
		require.NoError(t, err)
		defer db.RollbackTx(holder)
		_, err = accounts.LockAccountsForUpdate(ctx, holder, []int64{alice.ID})
		require.NoError(t, err)

		waiter, err := database.BeginTxx(ctx, nil)
		require.NoError(t, err)
		defer db.RollbackTx(waiter)
		require.NoError(t, db.SetLockTimeout(ctx, waiter, 100*time.Millisecond))

		_, err = accounts.LockAccountsForUpdate(ctx, waiter, []int64{treasury.ID, alice.ID})
		assert.ErrorIs(t, err, util.ErrLockTimeout)
	})

	t.Run("ListEntriesByAccount", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			postings := domain.TransferPostings(treasury.ID, alice.ID, gold.ID, decimal.NewFromInt(1))
			_, err := ledger.CreateTransactionWithEntries(ctx, database, domain.TransactionKindTopUp, nil, postings)
			require.NoError(t, err, fmt.Sprintf("posting %d", i))
		}

		entries, total, err := ledger.ListEntriesByAccount(ctx, database, alice.ID, &gold.ID, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		require.Len(t, entries, 2)
		assert.Greater(t, entries[0].ID, entries[1].ID)
		assert.Equal(t, domain.TransactionKindTopUp, entries[0].TransactionKind)

		hasEntries, err := ledger.HasEntries(ctx, database)
		require.NoError(t, err)
		assert.True(t, hasEntries)
	})

	t.Run("AssetRegistry", func(t *testing.T) {
		list, err := assets.ListAssetTypes(ctx, database)
		require.NoError(t, err)
		require.Len(t, list, 1)

		bySymbol, err := assets.GetAssetTypeBySymbol(ctx, database, "GOLD")
		require.NoError(t, err)
		assert.Equal(t, gold.ID, bySymbol.ID)

		_, err = assets.GetAssetTypeByID(ctx, database, 999)
		assert.ErrorIs(t, err, util.ErrAssetTypeNotFound)
	})
}
