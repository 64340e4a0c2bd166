package journals

import (
	"context"
	"fmt"
	"iter"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalshared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func (f LedgerFilter) validate() error {
	if f.BusinessID <= 0 {
		return fmt.Errorf("%w: business id required", shared.ErrInvalidPosting)
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return fmt.Errorf("%w: to before from", shared.ErrInvalidPosting)
	}
	return nil
}

// GetLedger streams the entries matching f ordered by (journal_date, id).
// Pages are fetched lazily; iteration stops at the first error.
func (e *Engine) GetLedger(ctx context.Context, f LedgerFilter) iter.Seq2[JournalEntry, error] {
	return func(yield func(JournalEntry, error) bool) {
		if err := f.validate(); err != nil {
			yield(JournalEntry{}, err)
			return
		}
		limit := internalshared.ClampPageSize(f.PageSize)
		var after *internalshared.Cursor
		for {
			page, err := e.repo.ListLedger(ctx, f, after, limit)
			if err != nil {
				yield(JournalEntry{}, fmt.Errorf("journals: ledger page: %w", err))
				return
			}
			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
			}
			if len(page) < limit {
				return
			}
			last := page[len(page)-1]
			after = &internalshared.Cursor{Date: last.JournalDate, ID: last.ID}
		}
	}
}

// LedgerPage returns one page starting after token. An empty NextToken marks
// the last page.
func (e *Engine) LedgerPage(ctx context.Context, f LedgerFilter, token string) (LedgerPage, error) {
	if err := f.validate(); err != nil {
		return LedgerPage{}, err
	}
	var after *internalshared.Cursor
	if token != "" {
		c, err := internalshared.DecodeCursor(token)
		if err != nil {
			return LedgerPage{}, err
		}
		after = &c
	}
	limit := internalshared.ClampPageSize(f.PageSize)
	// one extra row tells whether another page exists
	entries, err := e.repo.ListLedger(ctx, f, after, limit+1)
	if err != nil {
		return LedgerPage{}, fmt.Errorf("journals: ledger page: %w", err)
	}
	page := LedgerPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		last := page.Entries[limit-1]
		page.NextToken = internalshared.EncodeCursor(internalshared.Cursor{Date: last.JournalDate, ID: last.ID})
	}
	if page.Entries == nil {
		page.Entries = []JournalEntry{}
	}
	return page, nil
}
