package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/event"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/rules"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// JournalEntry is one balanced, immutable posting.
type JournalEntry struct {
	ID           int64         `json:"id"`
	BusinessID   int64         `json:"business_id"`
	PeriodID     int64         `json:"period_id"`
	EventCode    string        `json:"event_code"`
	SourceType   string        `json:"source_type"`
	SourceID     string        `json:"source_id"`
	SourceRef    uuid.UUID     `json:"source_ref"`
	JournalDate  time.Time     `json:"journal_date"`
	Description  string        `json:"description,omitempty"`
	Context      event.Context `json:"context"`
	ReversalOfID *int64        `json:"reversal_of_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	Lines        []JournalLine `json:"lines"`
}

// JournalLine stores one side of an entry for an account.
type JournalLine struct {
	ID             int64           `json:"id"`
	JournalEntryID int64           `json:"journal_entry_id"`
	AccountID      int64           `json:"account_id"`
	Direction      rules.Direction `json:"direction"`
	Amount         decimal.Decimal `json:"amount"`
	FinanceUserID  *int64          `json:"finance_user_id,omitempty"`
	ChannelType    *string         `json:"channel_type,omitempty"`
	ChannelID      *int64          `json:"channel_id,omitempty"`
	CustomerID     *int64          `json:"customer_id,omitempty"`
}

// Totals sums the debit and credit sides.
func Totals(lines []JournalLine) (debit, credit decimal.Decimal) {
	for _, l := range lines {
		switch l.Direction {
		case rules.Debit:
			debit = debit.Add(l.Amount)
		case rules.Credit:
			credit = credit.Add(l.Amount)
		}
	}
	return debit, credit
}

// PostInput describes a business event to be posted.
type PostInput struct {
	BusinessID  int64
	EventCode   string
	SourceType  string
	SourceID    string
	JournalDate time.Time
	Context     event.Context
	Description string
	// IdempotencyKey, when set, is claimed in the posting transaction so the
	// entry and the claim commit or roll back together.
	IdempotencyKey string
}

// Validate checks the caller-supplied envelope; context keys are validated by the rules.
func (in *PostInput) Validate() error {
	in.EventCode = strings.TrimSpace(in.EventCode)
	in.SourceType = strings.TrimSpace(in.SourceType)
	in.SourceID = strings.TrimSpace(in.SourceID)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	switch {
	case in.BusinessID <= 0:
		return fmt.Errorf("%w: business id required", shared.ErrInvalidPosting)
	case in.EventCode == "":
		return fmt.Errorf("%w: event code required", shared.ErrInvalidPosting)
	case in.SourceType == "" || in.SourceID == "":
		return fmt.Errorf("%w: source type and id required", shared.ErrInvalidPosting)
	case in.JournalDate.IsZero():
		return fmt.Errorf("%w: journal date required", shared.ErrInvalidPosting)
	}
	if in.Context == nil {
		in.Context = event.Context{}
	}
	y, m, d := in.JournalDate.Date()
	in.JournalDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return nil
}

// SourceRef derives the deterministic trace key of a source document.
func SourceRef(sourceType, sourceID string) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(sourceType+":"+sourceID))
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	BusinessID  int64
	EntryID     int64
	ActorID     int64
	JournalDate time.Time
	Description string
}

// LedgerFilter narrows getLedger. Zero values mean unbounded.
type LedgerFilter struct {
	BusinessID  int64
	AccountCode string
	DateFrom    *time.Time
	DateTo      *time.Time
	PageSize    int
}

// LedgerPage is one keyset page of the ledger.
type LedgerPage struct {
	Entries   []JournalEntry `json:"entries"`
	NextToken string         `json:"next_token,omitempty"`
}
