package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/segmentio/kafka-go"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/messaging"
)

// DeadLetterPublisher receives messages that will never be posted.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msg kafka.Message, reason string) error
}

// EventHandler posts one decoded business event.
type EventHandler interface {
	HandleBusinessEvent(ctx context.Context, evt BusinessEvent) (journalID int64, err error)
}

// HookHandler adapts Hooks to EventHandler.
type HookHandler struct {
	Hooks *Hooks
}

func (h HookHandler) HandleBusinessEvent(ctx context.Context, evt BusinessEvent) (int64, error) {
	entry, err := h.Hooks.HandleBusinessEvent(ctx, evt)
	return entry.ID, err
}

// ConsumerConfig tunes retries of transient failures.
type ConsumerConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Consumer turns business-event messages into postings. Every fetched message
// ends up either posted, skipped as a duplicate or dead-lettered before its
// offset is committed.
type Consumer struct {
	reader   messaging.Reader
	dlq      DeadLetterPublisher
	handler  EventHandler
	validate *validator.Validate
	logger   *slog.Logger
	cfg      ConsumerConfig
}

func NewConsumer(reader messaging.Reader, dlq DeadLetterPublisher, handler EventHandler, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Consumer{
		reader:   reader,
		dlq:      dlq,
		handler:  handler,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		cfg:      cfg,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("fetch message", slog.Any("error", err))
			if !sleep(ctx, c.cfg.Backoff) {
				return ctx.Err()
			}
			continue
		}
		if err := c.Process(ctx, msg); err != nil {
			// the offset stays uncommitted; the group rebalance redelivers it
			c.logger.Error("message left uncommitted",
				slog.String("topic", msg.Topic), slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset), slog.Any("error", err))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit message", slog.Int64("offset", msg.Offset), slog.Any("error", err))
		}
	}
}

// Process handles one message. A nil return means the offset may be committed.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) error {
	logger := c.logger.With(slog.String("topic", msg.Topic), slog.Int("partition", msg.Partition), slog.Int64("offset", msg.Offset))

	evt, err := c.decode(msg.Value)
	if err != nil {
		logger.Warn("undecodable business event", slog.Any("error", err))
		return c.deadLetter(ctx, msg, err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		entryID, err := c.handler.HandleBusinessEvent(ctx, evt)
		switch {
		case err == nil:
			logger.Info("business event posted", slog.Int64("entry_id", entryID), slog.String("event_code", evt.EventCode))
			return nil
		case errors.Is(err, ErrDuplicateEvent):
			logger.Info("duplicate business event skipped", slog.String("key", evt.IdempotencyKey()))
			return nil
		case IsPermanent(err):
			return c.deadLetter(ctx, msg, err)
		}
		lastErr = err
		logger.Warn("posting attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))
		if attempt < c.cfg.MaxAttempts && !sleep(ctx, c.cfg.Backoff*time.Duration(attempt)) {
			return ctx.Err()
		}
	}
	return c.deadLetter(ctx, msg, lastErr)
}

func (c *Consumer) decode(value []byte) (BusinessEvent, error) {
	var evt BusinessEvent
	dec := json.NewDecoder(bytes.NewReader(value))
	if err := dec.Decode(&evt); err != nil {
		return BusinessEvent{}, fmt.Errorf("decode: %w", err)
	}
	if err := c.validate.Struct(evt); err != nil {
		return BusinessEvent{}, fmt.Errorf("validate: %w", err)
	}
	return evt, nil
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	if c.dlq == nil {
		c.logger.Error("dropping message without dead letter topic", slog.Int64("offset", msg.Offset), slog.Any("error", cause))
		return nil
	}
	if err := c.dlq.Publish(ctx, msg, cause.Error()); err != nil {
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
