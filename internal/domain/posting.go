package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"closedloop-wallet/internal/util"
)

// AmountScale is the number of fractional digits stored for every amount.
const AmountScale int32 = 4

// Posting is a ledger entry that has not been persisted yet.
type Posting struct {
	AccountID   int64
	AssetTypeID int64
	Amount      decimal.Decimal
}

// ValidateAmount checks that a movement amount is strictly positive and representable at AmountScale.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return util.ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return util.ErrInvalidAmount
	}
	return nil
}

// TransferPostings builds the balanced pair for moving amount between two accounts.
// from is debited and to is credited.
func TransferPostings(from, to, assetTypeID int64, amount decimal.Decimal) []Posting {
	return []Posting{
		{AccountID: from, AssetTypeID: assetTypeID, Amount: amount.Neg()},
		{AccountID: to, AssetTypeID: assetTypeID, Amount: amount},
	}
}

// UserMovementPostings builds the entries for a user-facing operation against the treasury.
// TOP_UP and BONUS credit the user; SPEND debits the user.
func UserMovementPostings(kind TransactionKind, treasuryID, userID, assetTypeID int64, amount decimal.Decimal) []Posting {
	if kind.DebitsUser() {
		return TransferPostings(userID, treasuryID, assetTypeID, amount)
	}
	return TransferPostings(treasuryID, userID, assetTypeID, amount)
}

// ValidatePostings enforces the conservation law: every amount is non-zero at AmountScale and the
// amounts sum to exactly zero per asset type.
func ValidatePostings(postings []Posting) error {
	if len(postings) < 2 {
		return fmt.Errorf("%w: at least two entries are required", util.ErrUnbalancedTransaction)
	}
	sums := make(map[int64]decimal.Decimal)
	for _, p := range postings {
		if p.Amount.IsZero() || !p.Amount.Equal(p.Amount.Truncate(AmountScale)) {
			return fmt.Errorf("entry for account %d: %w", p.AccountID, util.ErrInvalidAmount)
		}
		sums[p.AssetTypeID] = sums[p.AssetTypeID].Add(p.Amount)
	}
	for assetTypeID, sum := range sums {
		if !sum.IsZero() {
			return fmt.Errorf("%w: asset type %d nets to %s", util.ErrUnbalancedTransaction, assetTypeID, sum.String())
		}
	}
	return nil
}
