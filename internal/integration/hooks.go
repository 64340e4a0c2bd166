package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// ErrDuplicateEvent reports an event that was already posted.
var ErrDuplicateEvent = errors.New("integration: event already processed")

// Poster exposes journal posting operations required by integrations.
type Poster interface {
	Post(ctx context.Context, in journals.PostInput) (journals.JournalEntry, error)
}

// Hooks wires business events from operational services into the general ledger.
type Hooks struct {
	poster Poster
	logger *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(poster Poster, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{poster: poster, logger: logger}
}

// HandleBusinessEvent posts evt at most once. The event's idempotency key is
// claimed inside the posting transaction, so a failed or interrupted post
// leaves nothing behind and a redelivery posts normally.
func (h *Hooks) HandleBusinessEvent(ctx context.Context, evt BusinessEvent) (journals.JournalEntry, error) {
	if h == nil || h.poster == nil {
		return journals.JournalEntry{}, errors.New("integration: hooks not configured")
	}
	in, err := evt.PostInput()
	if err != nil {
		return journals.JournalEntry{}, err
	}
	in.IdempotencyKey = evt.IdempotencyKey()

	entry, err := h.poster.Post(ctx, in)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicatePosting) {
			h.logger.Info("business event already posted", slog.String("key", in.IdempotencyKey))
			return journals.JournalEntry{}, fmt.Errorf("%w: %s", ErrDuplicateEvent, in.IdempotencyKey)
		}
		return journals.JournalEntry{}, err
	}
	return entry, nil
}

// IsPermanent reports whether redelivering the event cannot succeed.
func IsPermanent(err error) bool {
	var pe *shared.PostingError
	return errors.As(err, &pe) ||
		errors.Is(err, shared.ErrInvalidPosting) ||
		errors.Is(err, shared.ErrInvalidContext)
}
