// Package seed provisions a fresh database with the default asset types, the treasury, demo
// users and their opening balances. Running it again is a no-op.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"closedloop-wallet/internal/domain"
	"closedloop-wallet/internal/repository"
	"closedloop-wallet/internal/util"
	"closedloop-wallet/pkg/db"
)

// Status messages returned by Run.
const (
	StatusSeeded        = "Seeded: asset types, Treasury, user_alice, user_bob with initial balances"
	StatusAlreadySeeded = "Already seeded"
)

// SeedAccountName is the SYSTEM account that funds the treasury's opening balances.
const SeedAccountName = "Seed"

type assetDef struct {
	name, symbol string
}

type userDef struct {
	externalID, name string
	grants           map[string]decimal.Decimal // by asset symbol
}

var defaultAssets = []assetDef{
	{"Gold Coins", "GOLD"},
	{"Diamonds", "DMND"},
	{"Loyalty Points", "PTS"},
}

var treasuryFunding = map[string]decimal.Decimal{
	"GOLD": decimal.NewFromInt(10000),
	"DMND": decimal.NewFromInt(5000),
	"PTS":  decimal.NewFromInt(20000),
}

var defaultUsers = []userDef{
	{"user_alice", "Alice", map[string]decimal.Decimal{
		"GOLD": decimal.NewFromInt(100),
		"DMND": decimal.NewFromInt(50),
		"PTS":  decimal.NewFromInt(500),
	}},
	{"user_bob", "Bob", map[string]decimal.Decimal{
		"GOLD": decimal.NewFromInt(80),
		"DMND": decimal.NewFromInt(30),
		"PTS":  decimal.NewFromInt(200),
	}},
}

// Seeder writes the default data set through the regular repositories.
type Seeder struct {
	accounts     repository.AccountRepository
	assets       repository.AssetTypeRepository
	ledger       repository.LedgerRepository
	treasuryName string
	logger       *slog.Logger
}

// New creates a Seeder. An empty treasuryName means "Treasury".
func New(accounts repository.AccountRepository, assets repository.AssetTypeRepository, ledger repository.LedgerRepository, treasuryName string, logger *slog.Logger) *Seeder {
	if treasuryName == "" {
		treasuryName = "Treasury"
	}
	if logger == nil {
		logger = util.GetLogger()
	}
	return &Seeder{
		accounts:     accounts,
		assets:       assets,
		ledger:       ledger,
		treasuryName: treasuryName,
		logger:       logger,
	}
}

// Run seeds inside one database transaction and returns a status message.
func (s *Seeder) Run(ctx context.Context, dbConn db.DBTxBeginner) (string, error) {
	txController, err := db.BeginTx(ctx, dbConn)
	if err != nil {
		return "", fmt.Errorf("seed: failed to begin transaction: %w", err)
	}
	defer db.RollbackTx(txController)

	q, ok := txController.(repository.DBExecutor)
	if !ok {
		return "", fmt.Errorf("seed: transaction controller does not implement DBExecutor")
	}

	status, err := s.run(ctx, q)
	if err != nil {
		return "", fmt.Errorf("seed: %w", err)
	}

	if err := db.CommitTx(txController); err != nil {
		return "", fmt.Errorf("seed: failed to commit transaction: %w", err)
	}
	s.logger.Info("Seed finished", "status", status)
	return status, nil
}

func (s *Seeder) run(ctx context.Context, q repository.DBExecutor) (string, error) {
	assetIDs, err := s.ensureAssetTypes(ctx, q)
	if err != nil {
		return "", err
	}

	treasury, err := s.ensureAccounts(ctx, q)
	if err != nil {
		return "", err
	}

	seeded, err := s.ledger.HasEntries(ctx, q)
	if err != nil {
		return "", err
	}
	if seeded {
		return StatusAlreadySeeded, nil
	}

	source, err := s.systemAccount(ctx, q, SeedAccountName)
	if err != nil {
		return "", err
	}

	for _, asset := range defaultAssets {
		key := fmt.Sprintf("seed_treasury_%s", strings.ToLower(asset.symbol))
		if err := s.grant(ctx, q, key, source.ID, treasury.ID, assetIDs[asset.symbol], treasuryFunding[asset.symbol]); err != nil {
			return "", err
		}
	}

	for _, user := range defaultUsers {
		account, err := s.accounts.GetUserByExternalID(ctx, q, user.externalID)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", user.externalID, err)
		}
		for _, asset := range defaultAssets {
			amount, ok := user.grants[asset.symbol]
			if !ok {
				continue
			}
			name := strings.TrimPrefix(user.externalID, "user_")
			key := fmt.Sprintf("seed_%s_%s", name, strings.ToLower(asset.symbol))
			if err := s.grant(ctx, q, key, treasury.ID, account.ID, assetIDs[asset.symbol], amount); err != nil {
				return "", err
			}
		}
	}

	return StatusSeeded, nil
}

// ensureAssetTypes creates the default registry when it is empty and returns ids by symbol.
func (s *Seeder) ensureAssetTypes(ctx context.Context, q repository.DBExecutor) (map[string]int64, error) {
	existing, err := s.assets.ListAssetTypes(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		for _, def := range defaultAssets {
			assetType, err := domain.NewAssetType(def.name, def.symbol)
			if err != nil {
				return nil, err
			}
			if err := s.assets.CreateAssetType(ctx, q, assetType); err != nil {
				return nil, fmt.Errorf("create asset type %s: %w", def.symbol, err)
			}
		}
	}

	ids := make(map[string]int64, len(defaultAssets))
	for _, def := range defaultAssets {
		assetType, err := s.assets.GetAssetTypeBySymbol(ctx, q, def.symbol)
		if err != nil {
			return nil, fmt.Errorf("resolve asset type %s: %w", def.symbol, err)
		}
		ids[def.symbol] = assetType.ID
	}
	return ids, nil
}

// ensureAccounts creates the treasury and demo users when the treasury is missing.
func (s *Seeder) ensureAccounts(ctx context.Context, q repository.DBExecutor) (*domain.Account, error) {
	treasury, err := s.accounts.GetSystemByName(ctx, q, s.treasuryName)
	if err == nil {
		return treasury, nil
	}
	if !errors.Is(err, util.ErrAccountNotFound) {
		return nil, err
	}

	treasury = domain.NewSystemAccount(s.treasuryName)
	if err := s.accounts.CreateAccount(ctx, q, treasury); err != nil {
		return nil, fmt.Errorf("create treasury: %w", err)
	}
	for _, user := range defaultUsers {
		account := domain.NewUserAccount(user.externalID, user.name)
		if err := s.accounts.CreateAccount(ctx, q, account); err != nil && !errors.Is(err, util.ErrDuplicateEntry) {
			return nil, fmt.Errorf("create %s: %w", user.externalID, err)
		}
	}
	return treasury, nil
}

func (s *Seeder) systemAccount(ctx context.Context, q repository.DBExecutor, name string) (*domain.Account, error) {
	account, err := s.accounts.GetSystemByName(ctx, q, name)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, util.ErrAccountNotFound) {
		return nil, err
	}
	account = domain.NewSystemAccount(name)
	if err := s.accounts.CreateAccount(ctx, q, account); err != nil {
		return nil, fmt.Errorf("create %s account: %w", name, err)
	}
	return account, nil
}

// grant records a balanced BONUS transaction moving amount from one account to another.
func (s *Seeder) grant(ctx context.Context, q repository.DBExecutor, key string, from, to, assetTypeID int64, amount decimal.Decimal) error {
	postings := domain.TransferPostings(from, to, assetTypeID, amount)
	if err := domain.ValidatePostings(postings); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if _, err := s.ledger.CreateTransactionWithEntries(ctx, q, domain.TransactionKindBonus, &key, postings); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}
