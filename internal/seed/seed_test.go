package seed_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"closedloop-wallet/internal/repository/postgres"
	"closedloop-wallet/internal/seed"
	"closedloop-wallet/internal/util"
	"closedloop-wallet/pkg/db/dbtest"
)

func TestSeedIsIdempotentAndBalanced(t *testing.T) {
	database := dbtest.Open(t)
	ctx := context.Background()
	accounts := postgres.NewAccountRepository()
	assets := postgres.NewAssetTypeRepository()
	seeder := seed.New(accounts, assets, postgres.NewLedgerRepository(), "", util.DiscardLogger())

	status, err := seeder.Run(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, seed.StatusSeeded, status)

	status, err = seeder.Run(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, seed.StatusAlreadySeeded, status)

	var txCount int
	require.NoError(t, database.Get(&txCount, `SELECT COUNT(*) FROM transactions WHERE kind = 'BONUS'`))
	assert.Equal(t, 9, txCount)

	// Conservation: every asset sums to zero across the whole ledger.
	var nonZero int
	require.NoError(t, database.Get(&nonZero, `
		SELECT COUNT(*) FROM (
			SELECT asset_type_id FROM ledger_entries GROUP BY asset_type_id HAVING SUM(amount) <> 0
		) s`))
	assert.Zero(t, nonZero)

	treasury, err := accounts.GetSystemByName(ctx, database, "Treasury")
	require.NoError(t, err)
	alice, err := accounts.GetUserByExternalID(ctx, database, "user_alice")
	require.NoError(t, err)
	bob, err := accounts.GetUserByExternalID(ctx, database, "user_bob")
	require.NoError(t, err)

	expect := map[string][3]string{
		// treasury, alice, bob
		"GOLD": {"9820", "100", "80"},
		"DMND": {"4920", "50", "30"},
		"PTS":  {"19300", "500", "200"},
	}
	for symbol, want := range expect {
		assetType, err := assets.GetAssetTypeBySymbol(ctx, database, symbol)
		require.NoError(t, err)
		for i, id := range []int64{treasury.ID, alice.ID, bob.ID} {
			balance, err := accounts.GetBalance(ctx, database, id, assetType.ID)
			require.NoError(t, err)
			assert.True(t, balance.Equal(decimal.RequireFromString(want[i])), "%s account %d: got %s want %s", symbol, id, balance, want[i])
		}
	}
}
