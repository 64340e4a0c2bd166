package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DeadLetter republishes messages that could not be posted.
type DeadLetter struct {
	writer Writer
	topic  string
	logger *slog.Logger
	now    func() time.Time
}

// NewDeadLetter returns nil when topic is empty, which disables the DLQ.
func NewDeadLetter(writer Writer, topic string, logger *slog.Logger) *DeadLetter {
	if topic == "" || writer == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadLetter{writer: writer, topic: topic, logger: logger, now: time.Now}
}

type deadLetterPayload struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int    `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	Reason            string `json:"dlq_reason"`
	Timestamp         string `json:"timestamp"`
}

// Publish writes msg with the rejection reason to the DLQ topic.
func (d *DeadLetter) Publish(ctx context.Context, msg kafka.Message, reason string) error {
	if d == nil {
		return errors.New("messaging: dead letter topic not configured")
	}
	payload, err := json.Marshal(deadLetterPayload{
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		OriginalKey:       string(msg.Key),
		OriginalValue:     string(msg.Value),
		Reason:            reason,
		Timestamp:         d.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("messaging: encode dead letter: %w", err)
	}
	out := kafka.Message{
		Key:   msg.Key,
		Value: payload,
		Headers: []kafka.Header{
			{Key: "dlq-reason", Value: []byte(reason)},
			{Key: "dlq-origin", Value: []byte(msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10))},
		},
	}
	if err := d.writer.WriteMessages(ctx, out); err != nil {
		return fmt.Errorf("messaging: publish to %s: %w", d.topic, err)
	}
	d.logger.Info("message dead-lettered",
		slog.String("topic", d.topic), slog.String("key", string(msg.Key)), slog.String("reason", reason))
	return nil
}

func (d *DeadLetter) Close() error {
	if d == nil {
		return nil
	}
	return d.writer.Close()
}
