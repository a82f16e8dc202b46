// cmd/seed/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"closedloop-wallet/internal/config"
	"closedloop-wallet/internal/repository/postgres"
	"closedloop-wallet/internal/seed"
	"closedloop-wallet/internal/util"
	"closedloop-wallet/pkg/db"
)

func main() {
	if err := run(); err != nil {
		util.GetLogger().Error("Seed failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	config.LoadEnv()
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	util.InitLogger(cfg.LogLevel)
	logger := util.GetLogger()

	database, err := db.NewPostgresDB(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.EnsureSchema(ctx, database.DB, logger); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	seeder := seed.New(
		postgres.NewAccountRepository(),
		postgres.NewAssetTypeRepository(),
		postgres.NewLedgerRepository(),
		cfg.TreasuryName,
		logger,
	)
	status, err := seeder.Run(ctx, database)
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}
