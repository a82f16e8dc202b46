package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	migrationsDir    = "migrations"
	initialMigration = "00001_create_ledger.sql"
)

// Migrations returns the versioned schema migrations rooted at their directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedMigrations, migrationsDir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Schema returns the DDL of the initial ledger migration.
func Schema() string {
	ddl, err := fs.ReadFile(embedMigrations, migrationsDir+"/"+initialMigration)
	if err != nil {
		return ""
	}
	return string(ddl)
}

// NewMigrator builds a goose provider over the embedded migrations. Concurrent migrators
// serialise on a PostgreSQL session advisory lock.
func NewMigrator(database *sql.DB) (*goose.Provider, error) {
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("failed to create migration locker: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, database, Migrations(), goose.WithSessionLocker(locker))
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return provider, nil
}

// EnsureSchema applies every pending migration. It is safe to run on each startup.
func EnsureSchema(ctx context.Context, database *sql.DB, logger *slog.Logger) error {
	provider, err := NewMigrator(database)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, result := range results {
		logger.Info("Applied migration.", "version", result.Source.Version, "duration", result.Duration.String())
	}
	return nil
}
