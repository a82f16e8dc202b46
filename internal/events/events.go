// Package events publishes ledger facts to downstream consumers after they are committed.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"closedloop-wallet/internal/domain"
)

// TransactionPosted is emitted once per committed wallet operation.
type TransactionPosted struct {
	TransactionID int64                  `json:"transaction_id"`
	Kind          domain.TransactionKind `json:"kind"`
	AccountID     int64                  `json:"account_id"`
	AssetTypeID   int64                  `json:"asset_type_id"`
	Amount        decimal.Decimal        `json:"amount"`
	NewBalance    decimal.Decimal        `json:"new_balance"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// Publisher delivers events.
type Publisher interface {
	PublishTransactionPosted(ctx context.Context, event TransactionPosted) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishTransactionPosted(context.Context, TransactionPosted) error { return nil }
func (NopPublisher) Close() error                                                   { return nil }
