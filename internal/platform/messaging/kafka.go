// Package messaging holds the Kafka plumbing for business-event intake.
package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader used by consumers.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer wraps kafka.Writer methods for testing.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderConfig configures a consumer-group reader.
type ReaderConfig struct {
	Brokers string
	Topic   string
	GroupID string
	MaxWait time.Duration
}

// Brokers splits a comma separated broker list.
func Brokers(list string) []string {
	var out []string
	for _, b := range strings.Split(list, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewReader builds a group reader with manual commits.
func NewReader(cfg ReaderConfig) *kafka.Reader {
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = time.Second
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     Brokers(cfg.Brokers),
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     maxWait,
		StartOffset: kafka.FirstOffset,
	})
}

// NewWriter builds a synchronous writer that waits for all replicas.
func NewWriter(brokers, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(Brokers(brokers)...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
