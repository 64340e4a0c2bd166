package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestDeadLetterPublish(t *testing.T) {
	ctx := context.Background()
	writer := new(mockWriter)
	dlq := NewDeadLetter(writer, "ledger.events.dlq", slog.New(slog.NewTextHandler(io.Discard, nil)))
	dlq.now = func() time.Time { return time.Date(2025, 5, 14, 8, 0, 0, 0, time.UTC) }

	original := kafka.Message{Topic: "ledger.events", Partition: 2, Offset: 17, Key: []byte("1:INV-1"), Value: []byte(`{"event_code":"EVT"}`)}
	writer.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 || string(msgs[0].Key) != "1:INV-1" {
			return false
		}
		var payload map[string]any
		if err := json.Unmarshal(msgs[0].Value, &payload); err != nil {
			return false
		}
		return payload["dlq_reason"] == "period closed" &&
			payload["original_value"] == `{"event_code":"EVT"}` &&
			payload["original_offset"] == float64(17) &&
			payload["timestamp"] == "2025-05-14T08:00:00Z"
	})).Return(nil).Once()

	require.NoError(t, dlq.Publish(ctx, original, "period closed"))
	writer.AssertExpectations(t)
}

func TestDeadLetterWriterError(t *testing.T) {
	writer := new(mockWriter)
	dlq := NewDeadLetter(writer, "dlq", nil)
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	err := dlq.Publish(context.Background(), kafka.Message{}, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestDeadLetterDisabled(t *testing.T) {
	dlq := NewDeadLetter(new(mockWriter), "", nil)
	assert.Nil(t, dlq)
	require.Error(t, dlq.Publish(context.Background(), kafka.Message{}, "x"))
	require.NoError(t, dlq.Close())
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, Brokers(" a:9092, ,b:9092"))
	assert.Nil(t, Brokers(""))
}
