// internal/service/wallet_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"closedloop-wallet/internal/domain"
	"closedloop-wallet/internal/events"
	"closedloop-wallet/internal/idempotency"
	"closedloop-wallet/internal/repository"
	"closedloop-wallet/internal/util"
	"closedloop-wallet/pkg/db"

	"github.com/shopspring/decimal"
)

// DefaultTreasuryName is the SYSTEM account that is the counterparty of every user-facing movement.
const DefaultTreasuryName = "Treasury"

// DefaultPublishTimeout bounds the post-commit event write when Options leaves it unset.
const DefaultPublishTimeout = 2 * time.Second

// MovementResult is returned by TopUp, Bonus and Spend.
type MovementResult struct {
	TransactionID int64           `json:"transaction_id"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	Replayed      bool            `json:"replayed"`
}

// WalletService defines the interface for wallet-related business logic.
type WalletService interface {
	// TopUp credits a user after an external purchase; the treasury is debited.
	TopUp(ctx context.Context, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*MovementResult, error)
	// Bonus grants free credits to a user; the treasury is debited.
	Bonus(ctx context.Context, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*MovementResult, error)
	// Spend debits a user in favour of the treasury. Fails when the balance is insufficient.
	Spend(ctx context.Context, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*MovementResult, error)

	GetBalance(ctx context.Context, accountID, assetTypeID int64) (decimal.Decimal, error)
	GetUserAccount(ctx context.Context, externalUserID string) (*domain.Account, error)
	CreateUserAccount(ctx context.Context, externalUserID, name string) (*domain.Account, error)
	ListAssetTypes(ctx context.Context) ([]domain.AssetType, error)
	GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error)
	GetEntryHistory(ctx context.Context, accountID int64, assetTypeID *int64, limit, offset int) ([]domain.AccountEntry, int64, error)
}

// Options carries the optional collaborators and policies of the wallet service.
type Options struct {
	TreasuryName string
	// LockTimeout bounds the wait for account row locks. Zero keeps the server default.
	LockTimeout time.Duration
	// ForbidTreasuryOverdraft rejects credits the treasury cannot cover instead of only logging them.
	ForbidTreasuryOverdraft bool
	// PublishTimeout bounds the post-commit event write. Zero means DefaultPublishTimeout.
	PublishTimeout time.Duration
	Guard          idempotency.Guard
	Publisher      events.Publisher
	Logger         *slog.Logger
}

// walletService implements the WalletService interface.
type walletService struct {
	dbBeginner    db.DBTxBeginner       // For starting transactions (e.g., *sqlx.DB)
	dbExecutor    repository.DBExecutor // For independent reads (e.g., *sqlx.DB)
	accountRepo   repository.AccountRepository
	assetTypeRepo repository.AssetTypeRepository
	ledgerRepo    repository.LedgerRepository
	beginTx       db.BeginTxFunc
	commitTx      db.CommitTxFunc
	rollbackTx    db.RollbackTxFunc

	treasuryName            string
	lockTimeout             time.Duration
	forbidTreasuryOverdraft bool
	publishTimeout          time.Duration
	guard                   idempotency.Guard
	publisher               events.Publisher
	logger                  *slog.Logger
}

// NewWalletService creates a new instance of WalletService.
func NewWalletService(
	dbBeginner db.DBTxBeginner,
	dbExecutor repository.DBExecutor,
	accountRepo repository.AccountRepository,
	assetTypeRepo repository.AssetTypeRepository,
	ledgerRepo repository.LedgerRepository,
	beginTx db.BeginTxFunc,
	commitTx db.CommitTxFunc,
	rollbackTx db.RollbackTxFunc,
	opts Options,
) WalletService {
	s := &walletService{
		dbBeginner:              dbBeginner,
		dbExecutor:              dbExecutor,
		accountRepo:             accountRepo,
		assetTypeRepo:           assetTypeRepo,
		ledgerRepo:              ledgerRepo,
		beginTx:                 beginTx,
		commitTx:                commitTx,
		rollbackTx:              rollbackTx,
		treasuryName:            opts.TreasuryName,
		lockTimeout:             opts.LockTimeout,
		forbidTreasuryOverdraft: opts.ForbidTreasuryOverdraft,
		publishTimeout:          opts.PublishTimeout,
		guard:                   opts.Guard,
		publisher:               opts.Publisher,
		logger:                  opts.Logger,
	}
	if s.treasuryName == "" {
		s.treasuryName = DefaultTreasuryName
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = DefaultPublishTimeout
	}
	if s.guard == nil {
		s.guard = idempotency.NopGuard{}
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.logger == nil {
		s.logger = util.GetLogger()
	}
	return s
}

func (s *walletService) TopUp(ctx context.Context, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*MovementResult, error) {
	return s.move(ctx, domain.TransactionKindTopUp, accountID, assetTypeID, amount, idempotencyKey)
}

func (s *walletService) Bonus(ctx context.Context, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*MovementResult, error) {
	return s.move(ctx, domain.TransactionKindBonus, accountID, assetTypeID, amount, idempotencyKey)
}

func (s *walletService) Spend(ctx context.Context, accountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*MovementResult, error) {
	return s.move(ctx, domain.TransactionKindSpend, accountID, assetTypeID, amount, idempotencyKey)
}

// move is the single protocol behind every money movement: validate, replay, lock, check, write.
func (s *walletService) move(ctx context.Context, kind domain.TransactionKind, userAccountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*MovementResult, error) {
	op := operationName(kind)

	if err := domain.ValidateAmount(amount); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := domain.ValidateIdempotencyKey(idempotencyKey); err != nil {
		return nil, fmt.Errorf("%s: invalid idempotency key: %w", op, err)
	}

	if idempotencyKey != "" {
		release, err := s.guard.Reserve(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		defer release()

		result, err := s.replay(ctx, idempotencyKey, userAccountID, assetTypeID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if result != nil {
			return result, nil
		}
	}

	result, err := s.post(ctx, kind, userAccountID, assetTypeID, amount, idempotencyKey)
	if err != nil {
		// A concurrent request with the same key committed first; report its outcome.
		if idempotencyKey != "" && errors.Is(err, util.ErrDuplicateIdempotencyKey) {
			replayed, replayErr := s.replay(ctx, idempotencyKey, userAccountID, assetTypeID)
			if replayErr != nil {
				return nil, fmt.Errorf("%s: %w", op, replayErr)
			}
			if replayed != nil {
				return replayed, nil
			}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(ctx, kind, userAccountID, assetTypeID, amount, result)
	return result, nil
}

// replay returns the outcome of an already recorded transaction, or nil when key is unused.
// The balance is recomputed from the ledger rather than remembered.
func (s *walletService) replay(ctx context.Context, key string, userAccountID, assetTypeID int64) (*MovementResult, error) {
	existing, err := s.ledgerRepo.FindTransactionByIdempotencyKey(ctx, s.dbExecutor, key)
	if err != nil {
		if errors.Is(err, util.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	balance, err := s.accountRepo.GetBalance(ctx, s.dbExecutor, userAccountID, assetTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for replay: %w", err)
	}

	s.logger.Info("Idempotent replay", "idempotency_key", key, "transaction_id", existing.ID, "kind", existing.Kind)
	return &MovementResult{TransactionID: existing.ID, NewBalance: balance, Replayed: true}, nil
}

// post runs lock, check and write inside one unit of work.
func (s *walletService) post(ctx context.Context, kind domain.TransactionKind, userAccountID, assetTypeID int64, amount decimal.Decimal, idempotencyKey string) (*MovementResult, error) {
	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("transaction controller does not implement DBExecutor")
	}

	if err := db.SetLockTimeout(ctx, txExecutor, s.lockTimeout); err != nil {
		return nil, err
	}

	if _, err := s.assetTypeRepo.GetAssetTypeByID(ctx, txExecutor, assetTypeID); err != nil {
		return nil, err
	}

	treasury, err := s.accountRepo.GetSystemByName(ctx, txExecutor, s.treasuryName)
	if err != nil {
		if errors.Is(err, util.ErrAccountNotFound) {
			s.logger.Error("Treasury account is missing; deployment is misconfigured", "treasury_name", s.treasuryName)
			return nil, util.ErrTreasuryNotFound
		}
		return nil, fmt.Errorf("failed to resolve treasury: %w", err)
	}
	if treasury.ID == userAccountID {
		return nil, fmt.Errorf("%w: the treasury cannot be the user side of a movement", util.ErrInvalidInput)
	}

	// Locks are taken before any balance is read so concurrent debits serialise on the rows.
	locked, err := s.accountRepo.LockAccountsForUpdate(ctx, txExecutor, []int64{treasury.ID, userAccountID})
	if err != nil {
		return nil, err
	}
	for _, account := range locked {
		if account.ID == userAccountID && account.Kind != domain.AccountKindUser {
			return nil, fmt.Errorf("%w: account %d is not a user account", util.ErrInvalidInput, userAccountID)
		}
	}

	if kind.DebitsUser() {
		balance, err := s.accountRepo.GetBalance(ctx, txExecutor, userAccountID, assetTypeID)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(amount) {
			return nil, &util.InsufficientBalanceError{
				AccountID:   userAccountID,
				AssetTypeID: assetTypeID,
				Balance:     balance,
				Requested:   amount,
			}
		}
	} else if err := s.checkTreasury(ctx, txExecutor, treasury.ID, assetTypeID, amount); err != nil {
		return nil, err
	}

	postings := domain.UserMovementPostings(kind, treasury.ID, userAccountID, assetTypeID, amount)
	if err := domain.ValidatePostings(postings); err != nil {
		return nil, err
	}

	var keyPtr *string
	if idempotencyKey != "" {
		keyPtr = &idempotencyKey
	}
	transaction, err := s.ledgerRepo.CreateTransactionWithEntries(ctx, txExecutor, kind, keyPtr, postings)
	if err != nil {
		return nil, err
	}

	newBalance, err := s.accountRepo.GetBalance(ctx, txExecutor, userAccountID, assetTypeID)
	if err != nil {
		return nil, err
	}

	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &MovementResult{TransactionID: transaction.ID, NewBalance: newBalance}, nil
}

// checkTreasury applies the overdraft policy before the treasury is debited.
func (s *walletService) checkTreasury(ctx context.Context, q repository.DBExecutor, treasuryID, assetTypeID int64, amount decimal.Decimal) error {
	balance, err := s.accountRepo.GetBalance(ctx, q, treasuryID, assetTypeID)
	if err != nil {
		return err
	}
	if !balance.LessThan(amount) {
		return nil
	}
	if s.forbidTreasuryOverdraft {
		return fmt.Errorf("%w: asset %d has %s, need %s", util.ErrTreasuryOverdraft, assetTypeID, balance.String(), amount.String())
	}
	s.logger.Warn("Treasury balance going negative",
		"asset_type_id", assetTypeID,
		"treasury_balance", balance.String(),
		"amount", amount.String(),
	)
	return nil
}

func (s *walletService) publish(ctx context.Context, kind domain.TransactionKind, accountID, assetTypeID int64, amount decimal.Decimal, result *MovementResult) {
	event := events.TransactionPosted{
		TransactionID: result.TransactionID,
		Kind:          kind,
		AccountID:     accountID,
		AssetTypeID:   assetTypeID,
		Amount:        amount,
		NewBalance:    result.NewBalance,
		OccurredAt:    time.Now().UTC(),
	}
	// The movement is already committed; a cancelled request must not abort the event.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.PublishTransactionPosted(ctx, event); err != nil {
		s.logger.Warn("Failed to publish transaction event", "transaction_id", result.TransactionID, "error", err)
	}
}

func operationName(kind domain.TransactionKind) string {
	switch kind {
	case domain.TransactionKindTopUp:
		return "top up"
	case domain.TransactionKindBonus:
		return "bonus"
	default:
		return "spend"
	}
}

// GetBalance returns the ledger sum for an account and asset type using an independent read.
func (s *walletService) GetBalance(ctx context.Context, accountID, assetTypeID int64) (decimal.Decimal, error) {
	balance, err := s.accountRepo.GetBalance(ctx, s.dbExecutor, accountID, assetTypeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// GetUserAccount resolves an external user identifier.
func (s *walletService) GetUserAccount(ctx context.Context, externalUserID string) (*domain.Account, error) {
	account, err := s.accountRepo.GetUserByExternalID(ctx, s.dbExecutor, externalUserID)
	if err != nil {
		return nil, fmt.Errorf("get user account: %w", err)
	}
	return account, nil
}

// CreateUserAccount provisions a USER account for an external identity.
func (s *walletService) CreateUserAccount(ctx context.Context, externalUserID, name string) (*domain.Account, error) {
	account := domain.NewUserAccount(externalUserID, name)
	if err := account.Validate(); err != nil {
		return nil, fmt.Errorf("create user account: %w: %v", util.ErrInvalidInput, err)
	}

	txController, err := s.beginTx(ctx, s.dbBeginner)
	if err != nil {
		return nil, fmt.Errorf("create user account: failed to begin transaction: %w", err)
	}
	defer s.rollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return nil, fmt.Errorf("create user account: transaction controller does not implement DBExecutor")
	}

	_, err = s.accountRepo.GetUserByExternalID(ctx, txExecutor, externalUserID)
	if err == nil {
		return nil, fmt.Errorf("create user account: external user id '%s': %w", externalUserID, util.ErrDuplicateEntry)
	}
	if !errors.Is(err, util.ErrAccountNotFound) {
		return nil, fmt.Errorf("create user account: failed to check existing account: %w", err)
	}

	if err := s.accountRepo.CreateAccount(ctx, txExecutor, account); err != nil {
		return nil, fmt.Errorf("create user account: %w", err)
	}

	if err := s.commitTx(txController); err != nil {
		return nil, fmt.Errorf("create user account: failed to commit transaction: %w", err)
	}
	return account, nil
}

// ListAssetTypes returns the asset type registry.
func (s *walletService) ListAssetTypes(ctx context.Context) ([]domain.AssetType, error) {
	assetTypes, err := s.assetTypeRepo.ListAssetTypes(ctx, s.dbExecutor)
	if err != nil {
		return nil, fmt.Errorf("list asset types: %w", err)
	}
	return assetTypes, nil
}

// GetTransaction returns a transaction with its entries.
func (s *walletService) GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	transaction, err := s.ledgerRepo.GetTransactionByID(ctx, s.dbExecutor, transactionID)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return transaction, nil
}

// GetEntryHistory retrieves a paginated list of ledger entries for an account.
func (s *walletService) GetEntryHistory(ctx context.Context, accountID int64, assetTypeID *int64, limit, offset int) ([]domain.AccountEntry, int64, error) {
	if _, err := s.accountRepo.GetAccountByID(ctx, s.dbExecutor, accountID); err != nil {
		return nil, 0, fmt.Errorf("get entry history: %w", err)
	}

	entries, total, err := s.ledgerRepo.ListEntriesByAccount(ctx, s.dbExecutor, accountID, assetTypeID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("get entry history: %w", err)
	}
	return entries, total, nil
}
