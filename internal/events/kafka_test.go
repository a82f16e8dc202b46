package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"closedloop-wallet/internal/domain"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherEncodesEvent(t *testing.T) {
	writer := &recordingWriter{}
	publisher := &KafkaPublisher{writer: writer}

	event := TransactionPosted{
		TransactionID: 11,
		Kind:          domain.TransactionKindSpend,
		AccountID:     2,
		AssetTypeID:   1,
		Amount:        decimal.RequireFromString("25.5"),
		NewBalance:    decimal.RequireFromString("74.5"),
		OccurredAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishTransactionPosted(context.Background(), event))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "2", string(msg.Key))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "SPEND", decoded["kind"])
	assert.Equal(t, "25.5", decoded["amount"])
	assert.Equal(t, "74.5", decoded["new_balance"])

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker unavailable")
	publisher := &KafkaPublisher{writer: &recordingWriter{err: boom}}

	err := publisher.PublishTransactionPosted(context.Background(), TransactionPosted{TransactionID: 5})
	assert.ErrorIs(t, err, boom)
}
