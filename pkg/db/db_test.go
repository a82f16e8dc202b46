package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: "23505", Constraint: "transactions_idempotency_key_key"}

	assert.True(t, IsUniqueViolation(dup, ""))
	assert.True(t, IsUniqueViolation(dup, "transactions_idempotency_key_key"))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", dup), ""))
	assert.False(t, IsUniqueViolation(dup, "accounts_external_user_id_key"))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(errors.New("23505"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestIsLockTimeout(t *testing.T) {
	assert.True(t, IsLockTimeout(&pq.Error{Code: "55P03"}))
	assert.True(t, IsLockTimeout(fmt.Errorf("lock: %w", &pq.Error{Code: "55P03"})))
	assert.False(t, IsLockTimeout(&pq.Error{Code: "40P01"}))
	assert.False(t, IsLockTimeout(sql.ErrNoRows))
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, User: "wallet", Password: "secret", DBName: "ledger", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=wallet password=secret dbname=ledger sslmode=disable", cfg.DSN())

	cfg.URL = "postgres://wallet:secret@db:5433/ledger"
	assert.Equal(t, "postgres://wallet:secret@db:5433/ledger", cfg.DSN())
}

func TestSchemaIsIdempotentDDL(t *testing.T) {
	ddl := Schema()
	assert.True(t, strings.HasPrefix(ddl, "-- +goose Up"))
	for _, relation := range []string{"accounts", "asset_types", "transactions", "ledger_entries"} {
		assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS "+relation)
		assert.Contains(t, ddl, "DROP TABLE IF EXISTS "+relation)
	}
	assert.Contains(t, ddl, "idempotency_key VARCHAR(128) UNIQUE")
	assert.Contains(t, ddl, "NUMERIC(20, 4)")
	assert.Contains(t, ddl, "ON DELETE RESTRICT")
	assert.Contains(t, ddl, "ix_ledger_account_asset ON ledger_entries (account_id, asset_type_id)")
	assert.NotContains(t, ddl, "CREATE TABLE accounts")
	assert.Less(t, strings.Index(ddl, "-- +goose Up"), strings.Index(ddl, "-- +goose Down"))
}

func TestMigratorLoadsEmbeddedMigrations(t *testing.T) {
	// sql.Open does not dial, so the provider is built without a server.
	database, err := sql.Open("postgres", "host=localhost dbname=unused sslmode=disable")
	require.NoError(t, err)
	defer database.Close()

	provider, err := NewMigrator(database)
	require.NoError(t, err)

	sources := provider.ListSources()
	require.Len(t, sources, 1)
	assert.Equal(t, int64(1), sources[0].Version)
	assert.Contains(t, sources[0].Path, initialMigration)
}

type recordingExecer struct {
	queries []string
	err     error
}

func (r *recordingExecer) ExecContext(_ context.Context, query string, _ ...interface{}) (sql.Result, error) {
	r.queries = append(r.queries, query)
	return nil, r.err
}

func TestSetLockTimeout(t *testing.T) {
	ctx := context.Background()

	t.Run("Disabled", func(t *testing.T) {
		rec := &recordingExecer{}
		require.NoError(t, SetLockTimeout(ctx, rec, 0))
		assert.Empty(t, rec.queries)
	})

	t.Run("Milliseconds", func(t *testing.T) {
		rec := &recordingExecer{}
		require.NoError(t, SetLockTimeout(ctx, rec, 1500*time.Millisecond))
		assert.Equal(t, []string{"SET LOCAL lock_timeout = 1500"}, rec.queries)
	})

	t.Run("Failure", func(t *testing.T) {
		rec := &recordingExecer{err: errors.New("no transaction")}
		err := SetLockTimeout(ctx, rec, time.Second)
		assert.ErrorContains(t, err, "failed to set lock timeout")
	})
}

type fakeTx struct {
	rollbackErr error
	rollbacks   int
}

func (f *fakeTx) Commit() error { return nil }
func (f *fakeTx) Rollback() error {
	f.rollbacks++
	return f.rollbackErr
}

func TestRollbackTxAfterCommitIsQuiet(t *testing.T) {
	tx := &fakeTx{rollbackErr: sql.ErrTxDone}
	assert.NotPanics(t, func() { RollbackTx(tx) })
	assert.Equal(t, 1, tx.rollbacks)
}
