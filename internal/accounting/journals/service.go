package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/amounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/event"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/rules"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalshared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// RuleMatcher selects the rules that fire for an event.
type RuleMatcher interface {
	Match(ctx context.Context, businessID int64, eventCode string, ectx event.Context) ([]rules.Rule, error)
}

// AccountResolver resolves rule accounts in one batch.
type AccountResolver interface {
	ResolveAccountsByID(ctx context.Context, businessID int64, ids []int64) (map[int64]accounts.Account, error)
}

// PostingObserver counts posting outcomes.
type PostingObserver interface {
	ObservePosting(eventCode, outcome string)
}

// SourceTypeReversal marks entries created by Reverse.
const SourceTypeReversal = "journal_reversal"

// UnmatchedEventCode labels outcomes of events that matched no rule, keeping
// caller-supplied codes out of metric labels.
const UnmatchedEventCode = "unknown"

// Engine turns business events into balanced journal entries.
type Engine struct {
	repo     Repository
	rules    RuleMatcher
	accounts AccountResolver
	audit    AuditPort
	observer PostingObserver
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(repo Repository, matcher RuleMatcher, resolver AccountResolver, audit AuditPort, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{repo: repo, rules: matcher, accounts: resolver, audit: audit, logger: logger, now: time.Now}
}

func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// WithObserver attaches outcome metrics.
func (e *Engine) WithObserver(o PostingObserver) {
	e.observer = o
}

// Post resolves, builds and persists the entry for one business event. The
// period check and the write share one transaction.
func (e *Engine) Post(ctx context.Context, in PostInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		e.observe(UnmatchedEventCode, err)
		return JournalEntry{}, err
	}
	var entry JournalEntry
	metricCode := UnmatchedEventCode
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IdempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, in.IdempotencyKey); err != nil {
				return err
			}
		}
		period, err := tx.LockPeriodForPosting(ctx, in.BusinessID, in.JournalDate)
		if err != nil {
			return err
		}
		if err := periods.AssertPostable(period); err != nil {
			return fmt.Errorf("%w: period %d", err, period.ID)
		}
		matched, err := e.rules.Match(ctx, in.BusinessID, in.EventCode, in.Context)
		if err != nil {
			return err
		}
		if len(matched) > 0 {
			metricCode = in.EventCode
		}
		lines, err := e.buildLines(ctx, in, matched)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			BusinessID:  in.BusinessID,
			PeriodID:    period.ID,
			EventCode:   in.EventCode,
			SourceType:  in.SourceType,
			SourceID:    in.SourceID,
			SourceRef:   SourceRef(in.SourceType, in.SourceID),
			JournalDate: in.JournalDate,
			Description: in.Description,
			Context:     in.Context,
		})
		if err != nil {
			return err
		}
		persisted, err := tx.InsertLines(ctx, inserted.ID, lines)
		if err != nil {
			return err
		}
		inserted.Lines = persisted
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, e.reject(in.BusinessID, in.EventCode, metricCode, err)
	}

	e.observe(metricCode, nil)
	debit, _ := Totals(entry.Lines)
	e.logger.Info("journal posted",
		slog.Int64("entry_id", entry.ID), slog.Int64("business_id", entry.BusinessID),
		slog.String("event_code", entry.EventCode), slog.String("amount", debit.String()), slog.Int("lines", len(entry.Lines)))
	if e.audit != nil {
		_ = e.audit.Record(ctx, internalshared.AuditLog{
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: strconv.FormatInt(entry.ID, 10),
			Meta: map[string]any{
				"business_id": entry.BusinessID,
				"event_code":  entry.EventCode,
				"source_type": entry.SourceType,
				"source_id":   entry.SourceID,
				"source_ref":  entry.SourceRef.String(),
			},
			At: e.now(),
		})
	}
	return entry, nil
}

// buildLines evaluates the matched rules into balanced lines.
func (e *Engine) buildLines(ctx context.Context, in PostInput, matched []rules.Rule) ([]JournalLine, error) {
	reject := func(err error, rule rules.Rule, key, detail string) error {
		return &shared.PostingError{Err: err, BusinessID: in.BusinessID, EventCode: in.EventCode,
			RuleID: rule.ID, AccountID: rule.AccountID, Key: key, Detail: detail}
	}

	if len(matched) == 0 {
		return nil, reject(shared.ErrNoRulesConfigured, rules.Rule{}, "", "")
	}

	collectorID, hasCollector := in.Context.CollectorUserID()
	for _, rule := range matched {
		if rule.CollectorRequired && !hasCollector {
			return nil, reject(shared.ErrCollectorRequired, rule, event.KeyCollectorUserID, "rule "+rule.RuleName+" requires a positive integer collector")
		}
	}

	dims, err := lineDimensions(in.Context)
	if err != nil {
		return nil, &shared.PostingError{Err: shared.ErrInvalidContext, BusinessID: in.BusinessID, EventCode: in.EventCode, Detail: err.Error()}
	}

	ids := make([]int64, 0, len(matched))
	seen := make(map[int64]bool, len(matched))
	for _, rule := range matched {
		if !seen[rule.AccountID] {
			seen[rule.AccountID] = true
			ids = append(ids, rule.AccountID)
		}
	}
	if _, err := e.accounts.ResolveAccountsByID(ctx, in.BusinessID, ids); err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return nil, &shared.PostingError{Err: err, BusinessID: in.BusinessID, EventCode: in.EventCode}
		}
		return nil, err
	}

	lines := make([]JournalLine, 0, len(matched))
	for _, rule := range matched {
		amount, err := amounts.Resolve(in.Context, rule.AmountSource)
		if err != nil {
			return nil, reject(shared.ErrMissingAmountSource, rule, rule.AmountSource, err.Error())
		}
		if amount.IsZero() {
			return nil, reject(shared.ErrZeroAmount, rule, rule.AmountSource, "")
		}
		line := dims
		line.AccountID = rule.AccountID
		line.Direction = rule.Direction
		line.Amount = amount
		if rule.CollectorRequired {
			id := collectorID
			line.FinanceUserID = &id
		}
		lines = append(lines, line)
	}

	if err := checkBalance(lines); err != nil {
		return nil, &shared.PostingError{Err: shared.ErrUnbalancedEntry, BusinessID: in.BusinessID, EventCode: in.EventCode, Detail: err.Error()}
	}
	return lines, nil
}

// lineDimensions reads the optional reporting dimensions copied onto every line.
func lineDimensions(ectx event.Context) (JournalLine, error) {
	var line JournalLine
	if v, ok := ectx.Get(event.KeyChannelType); ok {
		s, ok := v.Text()
		if !ok || s == "" {
			return line, fmt.Errorf("%s must be a non-empty string", event.KeyChannelType)
		}
		line.ChannelType = &s
	}
	for key, dst := range map[string]**int64{event.KeyChannelID: &line.ChannelID, event.KeyCustomerID: &line.CustomerID} {
		if _, present := ectx.Get(key); !present {
			continue
		}
		id, ok := ectx.PositiveID(key)
		if !ok {
			return line, fmt.Errorf("%s must be a positive integer", key)
		}
		*dst = &id
	}
	return line, nil
}

// checkBalance enforces at least one line per side and exact equality.
func checkBalance(lines []JournalLine) error {
	var debits, credits int
	for _, l := range lines {
		if !l.Amount.IsPositive() {
			return fmt.Errorf("line on account %d has non-positive amount %s", l.AccountID, l.Amount)
		}
		switch l.Direction {
		case rules.Debit:
			debits++
		case rules.Credit:
			credits++
		default:
			return fmt.Errorf("line on account %d has direction %q", l.AccountID, l.Direction)
		}
	}
	debit, credit := Totals(lines)
	if debits == 0 || credits == 0 {
		return fmt.Errorf("%d debit and %d credit lines", debits, credits)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("debit %s != credit %s", debit, credit)
	}
	return nil
}

var rejections = []error{
	shared.ErrNoPeriodDefined,
	shared.ErrPeriodClosed,
	shared.ErrPeriodLocked,
	shared.ErrNoRulesConfigured,
	shared.ErrAccountNotFound,
	shared.ErrMissingAmountSource,
	shared.ErrCollectorRequired,
	shared.ErrZeroAmount,
	shared.ErrInvalidContext,
	shared.ErrInvalidCondition,
	shared.ErrJournalNotFound,
	shared.ErrAlreadyReversed,
	shared.ErrDuplicatePosting,
	shared.ErrUnbalancedEntry,
	shared.ErrInvalidPeriod,
}

func isRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// reject normalises a failed posting into a PostingError, logs it at the
// severity its class deserves and records the outcome.
func (e *Engine) reject(businessID int64, eventCode, metricCode string, err error) error {
	switch db.SQLState(err) {
	case db.CodeCheckViolation:
		err = &shared.PostingError{Err: shared.ErrUnbalancedEntry, BusinessID: businessID, EventCode: eventCode,
			Detail: "rejected by ledger balance constraint: " + err.Error()}
	case db.CodeNumericOutOfRange:
		err = &shared.PostingError{Err: shared.ErrMissingAmountSource, BusinessID: businessID, EventCode: eventCode,
			Detail: "amount out of range: " + err.Error()}
	}
	attrs := []any{slog.Int64("business_id", businessID), slog.String("event_code", eventCode), slog.Any("error", err)}

	if !isRejection(err) {
		e.observe(metricCode, err)
		e.logger.Error("journal posting failed", attrs...)
		return fmt.Errorf("journals: post %s: %w", eventCode, err)
	}
	var pe *shared.PostingError
	if !errors.As(err, &pe) {
		pe = &shared.PostingError{Err: err, BusinessID: businessID, EventCode: eventCode}
	}
	e.observe(metricCode, pe)
	if errors.Is(pe, shared.ErrUnbalancedEntry) {
		e.logger.Error("journal rejected: unbalanced entry, check rule configuration", attrs...)
	} else {
		e.logger.Info("journal rejected", attrs...)
	}
	return pe
}

func (e *Engine) observe(eventCode string, err error) {
	if e.observer == nil {
		return
	}
	e.observer.ObservePosting(eventCode, Outcome(err))
}

// Outcome names the metric label for a posting result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "posted"
	case errors.Is(err, shared.ErrNoPeriodDefined):
		return "no_period_defined"
	case errors.Is(err, shared.ErrPeriodClosed):
		return "period_closed"
	case errors.Is(err, shared.ErrPeriodLocked):
		return "period_locked"
	case errors.Is(err, shared.ErrNoRulesConfigured):
		return "no_rules_configured"
	case errors.Is(err, shared.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, shared.ErrMissingAmountSource):
		return "missing_amount_source"
	case errors.Is(err, shared.ErrCollectorRequired):
		return "collector_required"
	case errors.Is(err, shared.ErrUnbalancedEntry):
		return "unbalanced_entry"
	case errors.Is(err, shared.ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, shared.ErrInvalidContext), errors.Is(err, shared.ErrInvalidPosting):
		return "invalid_request"
	case errors.Is(err, shared.ErrJournalNotFound):
		return "journal_not_found"
	case errors.Is(err, shared.ErrAlreadyReversed):
		return "already_reversed"
	case errors.Is(err, shared.ErrDuplicatePosting):
		return "duplicate"
	}
	return "error"
}

// GetEntry returns one entry with its lines.
func (e *Engine) GetEntry(ctx context.Context, businessID, entryID int64) (JournalEntry, error) {
	return e.repo.GetEntry(ctx, businessID, entryID)
}

// Reverse posts a mirror entry that cancels entryID. The reversal lands in the
// period covering JournalDate (today when zero), which must be open, even when
// the original sits in a closed period.
func (e *Engine) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.BusinessID <= 0 || in.EntryID <= 0 {
		return JournalEntry{}, fmt.Errorf("%w: business and entry id required", shared.ErrInvalidPosting)
	}
	if in.ActorID <= 0 {
		return JournalEntry{}, shared.ErrActorRequired
	}
	date := in.JournalDate
	if date.IsZero() {
		date = e.now()
	}
	y, m, d := date.Date()
	date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var reversal JournalEntry
	var original JournalEntry
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		original, err = tx.GetEntry(ctx, in.BusinessID, in.EntryID)
		if err != nil {
			return err
		}
		reversed, err := tx.HasReversal(ctx, original.ID)
		if err != nil {
			return err
		}
		if reversed {
			return fmt.Errorf("%w: entry %d", shared.ErrAlreadyReversed, original.ID)
		}
		period, err := tx.LockPeriodForPosting(ctx, in.BusinessID, date)
		if err != nil {
			return err
		}
		if err := periods.AssertPostable(period); err != nil {
			return fmt.Errorf("%w: period %d", err, period.ID)
		}
		lines := reverseLines(original.Lines)
		if err := checkBalance(lines); err != nil {
			return &shared.PostingError{Err: shared.ErrUnbalancedEntry, BusinessID: in.BusinessID, EventCode: original.EventCode, Detail: err.Error()}
		}
		sourceID := strconv.FormatInt(original.ID, 10)
		inserted, err := tx.InsertEntry(ctx, JournalEntry{
			BusinessID:   in.BusinessID,
			PeriodID:     period.ID,
			EventCode:    original.EventCode,
			SourceType:   SourceTypeReversal,
			SourceID:     sourceID,
			SourceRef:    SourceRef(SourceTypeReversal, sourceID),
			JournalDate:  date,
			Description:  reversalDescription(in.Description, original.ID),
			Context:      original.Context,
			ReversalOfID: &original.ID,
		})
		if err != nil {
			return err
		}
		persisted, err := tx.InsertLines(ctx, inserted.ID, lines)
		if err != nil {
			return err
		}
		inserted.Lines = persisted
		reversal = inserted
		return nil
	})
	if err != nil {
		eventCode := original.EventCode
		if eventCode == "" {
			eventCode = SourceTypeReversal
		}
		return JournalEntry{}, e.reject(in.BusinessID, eventCode, eventCode, err)
	}

	e.logger.Info("journal reversed",
		slog.Int64("entry_id", in.EntryID), slog.Int64("reversal_id", reversal.ID), slog.Int64("actor_id", in.ActorID))
	if e.audit != nil {
		_ = e.audit.Record(ctx, internalshared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "journal.reverse",
			Entity:   "journal_entry",
			EntityID: strconv.FormatInt(in.EntryID, 10),
			Meta: map[string]any{
				"business_id": in.BusinessID,
				"reversal_id": reversal.ID,
			},
			At: e.now(),
		})
	}
	return reversal, nil
}

func reverseLines(lines []JournalLine) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		line.ID = 0
		line.JournalEntryID = 0
		line.Direction = line.Direction.Opposite()
		out = append(out, line)
	}
	return out
}

func reversalDescription(desc string, entryID int64) string {
	if desc != "" {
		return desc
	}
	return fmt.Sprintf("Reversal of journal entry %d", entryID)
}
