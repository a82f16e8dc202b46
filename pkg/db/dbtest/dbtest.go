// Package dbtest opens the PostgreSQL database used by integration tests.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"closedloop-wallet/pkg/db"
)

// EnvURL names the variable holding the integration database URL.
const EnvURL = "TEST_DATABASE_URL"

// lockKey serialises test packages that share the database; go test runs packages in parallel.
const lockKey = 727001

// Open connects to the integration database, applies the schema and truncates every ledger
// relation. The test is skipped in -short mode or when EnvURL is unset. The database stays
// exclusively held by the calling test until cleanup.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skip(EnvURL + " not set")
	}

	database, err := db.NewPostgresDB(db.Config{URL: url})
	require.NoError(t, err)

	ctx := context.Background()
	release, err := Lock(ctx, database)
	require.NoError(t, err)
	t.Cleanup(func() {
		release()
		_ = database.Close()
	})

	require.NoError(t, db.EnsureSchema(ctx, database.DB, slog.New(slog.NewTextHandler(io.Discard, nil))))
	Reset(t, database)
	return database
}

// Lock takes the session advisory lock shared by all integration tests. The returned func
// releases it and returns the connection to the pool.
func Lock(ctx context.Context, database *sqlx.DB) (func(), error) {
	conn, err := database.Connx(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockKey); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockKey)
		_ = conn.Close()
	}, nil
}

// Reset empties every ledger relation and restarts the id sequences.
func Reset(t *testing.T, database *sqlx.DB) {
	t.Helper()
	_, err := database.Exec(TruncateAll)
	require.NoError(t, err)
}

// TruncateAll empties every ledger relation.
const TruncateAll = `TRUNCATE TABLE ledger_entries, transactions, accounts, asset_types RESTART IDENTITY CASCADE`
