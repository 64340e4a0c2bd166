package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// ledgerPoster commits an entry and its idempotency key together, and commits
// nothing when the context is cancelled mid-post.
type ledgerPoster struct {
	calls  []journals.PostInput
	keys   map[string]bool
	posted int
	err    error
	cancel context.CancelFunc
}

func (p *ledgerPoster) Post(ctx context.Context, in journals.PostInput) (journals.JournalEntry, error) {
	p.calls = append(p.calls, in)
	if p.keys[in.IdempotencyKey] {
		return journals.JournalEntry{}, &shared.PostingError{Err: shared.ErrDuplicatePosting, BusinessID: in.BusinessID, EventCode: in.EventCode}
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if err := ctx.Err(); err != nil {
		return journals.JournalEntry{}, err
	}
	if p.err != nil {
		return journals.JournalEntry{}, p.err
	}
	if p.keys == nil {
		p.keys = map[string]bool{}
	}
	p.keys[in.IdempotencyKey] = true
	p.posted++
	return journals.JournalEntry{ID: int64(p.posted), BusinessID: in.BusinessID}, nil
}

func sampleEvent() BusinessEvent {
	return BusinessEvent{
		BusinessID:  1,
		EventCode:   "EVT_VOUCHER_SOLD",
		SourceType:  "voucher_sale",
		SourceID:    "INV-1",
		JournalDate: "2025-05-14",
		Context:     json.RawMessage(`{"total_amount":"50000.00","payment_type":"cash","note":null}`),
	}
}

func TestBusinessEventPostInput(t *testing.T) {
	in, err := sampleEvent().PostInput()
	require.NoError(t, err)
	assert.Equal(t, 2025, in.JournalDate.Year())
	amount, ok := in.Context["total_amount"].Decimal()
	require.True(t, ok)
	assert.Equal(t, "50000", amount.String())
	_, hasNote := in.Context["note"]
	assert.False(t, hasNote)

	evt := sampleEvent()
	evt.Context = json.RawMessage(`{"items":[1,2]}`)
	_, err = evt.PostInput()
	require.ErrorIs(t, err, shared.ErrInvalidContext)
}

func TestHooksPostOnce(t *testing.T) {
	poster := &ledgerPoster{}
	hooks := NewHooks(poster, nil)

	entry, err := hooks.HandleBusinessEvent(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.ID)
	assert.Equal(t, "ledger:1:EVT_VOUCHER_SOLD:voucher_sale:INV-1", poster.calls[0].IdempotencyKey)

	_, err = hooks.HandleBusinessEvent(context.Background(), sampleEvent())
	require.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Equal(t, 1, poster.posted)
}

func TestHooksCancelledPostIsRedelivered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	poster := &ledgerPoster{cancel: cancel}
	hooks := NewHooks(poster, nil)

	_, err := hooks.HandleBusinessEvent(ctx, sampleEvent())
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsPermanent(err))
	assert.Empty(t, poster.keys)

	entry, err := hooks.HandleBusinessEvent(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.ID)
	assert.Equal(t, 1, poster.posted)
}

func TestHooksRejectionIsPermanent(t *testing.T) {
	poster := &ledgerPoster{err: &shared.PostingError{Err: shared.ErrPeriodClosed, BusinessID: 1}}
	hooks := NewHooks(poster, nil)

	_, err := hooks.HandleBusinessEvent(context.Background(), sampleEvent())
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	assert.True(t, IsPermanent(err))
	assert.Zero(t, poster.posted)
}

func TestHooksInfrastructureErrorIsTransient(t *testing.T) {
	poster := &ledgerPoster{err: errors.New("connection refused")}
	hooks := NewHooks(poster, nil)

	_, err := hooks.HandleBusinessEvent(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.Empty(t, poster.keys)
}
