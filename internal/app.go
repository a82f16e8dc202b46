// internal/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	router "closedloop-wallet/internal/api"
	"closedloop-wallet/internal/api/handler"
	"closedloop-wallet/internal/config"
	"closedloop-wallet/internal/events"
	"closedloop-wallet/internal/idempotency"
	"closedloop-wallet/internal/repository"
	"closedloop-wallet/internal/repository/postgres"
	"closedloop-wallet/internal/service"
	"closedloop-wallet/internal/util"
	"closedloop-wallet/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *slog.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	// Repositories
	AccountRepository   repository.AccountRepository
	AssetTypeRepository repository.AssetTypeRepository
	LedgerRepository    repository.LedgerRepository

	// Side channels
	Guard     idempotency.Guard
	Publisher events.Publisher

	// Services
	WalletService service.WalletService

	// HTTP API
	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{Logger: util.GetLogger()}
}

// Initialize initializes all application components.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	config.LoadEnv()
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	// 2. Initialize Logger
	util.InitLogger(cfg.LogLevel)
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.")

	// 3. Connect to Database
	database, err := db.NewPostgresDB(app.Config.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.Logger.Info("Database connection established.")

	if cfg.AutoMigrate {
		if err := db.EnsureSchema(ctx, app.DB.DB, app.Logger); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		app.Logger.Info("Database migrations applied.")
	}

	// 4. Initialize Repositories
	app.AccountRepository = postgres.NewAccountRepository()
	app.AssetTypeRepository = postgres.NewAssetTypeRepository()
	app.LedgerRepository = postgres.NewLedgerRepository()
	app.Logger.Info("Repositories initialized.")

	// 5. Optional idempotency reservations and event publishing
	app.Guard = idempotency.NopGuard{}
	if cfg.RedisURL != "" {
		client, err := idempotency.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.Redis = client
		app.Guard = idempotency.NewRedisGuard(client, cfg.IdempotencyTTL, app.Logger)
		app.Logger.Info("Idempotency reservations enabled.", "ttl", cfg.IdempotencyTTL.String())
	}

	app.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		app.Publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		app.Logger.Info("Ledger events enabled.", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	// 6. Initialize Services
	// Pass the concrete db.BeginTx, db.CommitTx, db.RollbackTx functions from pkg/db
	app.WalletService = service.NewWalletService(
		app.DB, // This is the DBTxBeginner
		app.DB, // This is the DBExecutor
		app.AccountRepository,
		app.AssetTypeRepository,
		app.LedgerRepository,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		service.Options{
			TreasuryName:            cfg.TreasuryName,
			LockTimeout:             cfg.LockTimeout,
			ForbidTreasuryOverdraft: !cfg.AllowTreasuryOverdraft,
			PublishTimeout:          cfg.KafkaPublishTimeout,
			Guard:                   app.Guard,
			Publisher:               app.Publisher,
			Logger:                  app.Logger,
		},
	)
	app.Logger.Info("Services initialized.")

	// 7. Initialize HTTP Handlers and Router
	walletHandler := handler.NewWalletHandler(app.WalletService, app.Logger)
	app.HTTPHandler = router.NewRouter(walletHandler)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	var firstErr error
	if app.Publisher != nil {
		if err := app.Publisher.Close(); err != nil {
			app.Logger.Error("Failed to close event publisher", "error", err)
			firstErr = fmt.Errorf("failed to close event publisher: %w", err)
		}
	}
	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			app.Logger.Error("Failed to close redis client", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close redis client: %w", err)
			}
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			return fmt.Errorf("failed to close database connection: %w", err)
		}
		app.Logger.Info("Database connection closed.")
	}
	if firstErr != nil {
		return firstErr
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
