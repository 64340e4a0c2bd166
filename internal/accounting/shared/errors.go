package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoPeriodDefined indicates no period covers the journal date.
	ErrNoPeriodDefined = errors.New("accounting: no period defined for date")
	// ErrPeriodClosed indicates a posting into a closed period.
	ErrPeriodClosed = errors.New("accounting: period closed")
	// ErrPeriodLocked indicates a posting or transition on a locked period.
	ErrPeriodLocked = errors.New("accounting: period locked")
	// ErrNoRulesConfigured indicates no active rule matched the event.
	ErrNoRulesConfigured = errors.New("accounting: no rules configured for event")
	// ErrAccountNotFound indicates a missing or inactive account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrMissingAmountSource indicates an absent or unusable amount in the event context.
	ErrMissingAmountSource = errors.New("accounting: missing amount source")
	// ErrCollectorRequired indicates a collector rule without a collector identity.
	ErrCollectorRequired = errors.New("accounting: collector required")
	// ErrUnbalancedEntry indicates debits and credits differ.
	ErrUnbalancedEntry = errors.New("accounting: unbalanced entry")
	// ErrPeriodOverlap indicates a new period intersects an existing one.
	ErrPeriodOverlap = errors.New("accounting: period overlaps existing period")
	// ErrConcurrentPeriodTransition indicates a lost optimistic-lock race.
	ErrConcurrentPeriodTransition = errors.New("accounting: concurrent period transition")
	// ErrPeriodNotFound indicates a missing period id.
	ErrPeriodNotFound = errors.New("accounting: period not found")
	// ErrActorRequired indicates a period transition without an acting user.
	ErrActorRequired = errors.New("accounting: actor required")
	// ErrInvalidPeriod indicates a malformed period definition.
	ErrInvalidPeriod = errors.New("accounting: invalid period")
	// ErrInvalidCondition indicates a rule condition that is not a flat key/value map.
	ErrInvalidCondition = errors.New("accounting: invalid rule condition")
	// ErrInvalidRule indicates a rule definition rejected at configuration time.
	ErrInvalidRule = errors.New("accounting: invalid rule")
	// ErrInvalidPosting indicates a posting request missing its envelope fields.
	ErrInvalidPosting = errors.New("accounting: invalid posting request")
	// ErrInvalidContext indicates an event context that is not a flat scalar map.
	ErrInvalidContext = errors.New("accounting: invalid event context")
	// ErrInvalidAccount indicates an account definition rejected at configuration time.
	ErrInvalidAccount = errors.New("accounting: invalid account")
	// ErrAccountCycle indicates a re-parent that would create a cycle.
	ErrAccountCycle = errors.New("accounting: account hierarchy cycle")
	// ErrZeroAmount indicates a matched rule resolved to a zero amount.
	ErrZeroAmount = errors.New("accounting: zero amount")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("accounting: journal entry not found")
	// ErrDuplicatePosting indicates the idempotency key of a posting was already committed.
	ErrDuplicatePosting = errors.New("accounting: posting already processed")
	// ErrAlreadyReversed indicates the entry already has a reversal.
	ErrAlreadyReversed = errors.New("accounting: journal entry already reversed")
)

// PostingError carries the context of a rejected posting. It unwraps to one of
// the sentinels above.
type PostingError struct {
	Err        error
	BusinessID int64
	EventCode  string
	RuleID     int64
	AccountID  int64
	Key        string
	Detail     string
}

func (e *PostingError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	fmt.Fprintf(&b, " (business=%d event=%s", e.BusinessID, e.EventCode)
	if e.RuleID != 0 {
		fmt.Fprintf(&b, " rule=%d", e.RuleID)
	}
	if e.AccountID != 0 {
		fmt.Fprintf(&b, " account=%d", e.AccountID)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key=%s", e.Key)
	}
	b.WriteString(")")
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *PostingError) Unwrap() error { return e.Err }
