package integration

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/event"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// BusinessEvent is the message published by operational services for every
// business fact that may need a journal entry.
type BusinessEvent struct {
	BusinessID  int64           `json:"business_id" validate:"required,gt=0"`
	EventCode   string          `json:"event_code" validate:"required,max=64"`
	SourceType  string          `json:"source_type" validate:"required,max=64"`
	SourceID    string          `json:"source_id" validate:"required,max=128"`
	JournalDate string          `json:"journal_date" validate:"required,datetime=2006-01-02"`
	Context     json.RawMessage `json:"context"`
	Description string          `json:"description,omitempty" validate:"max=500"`
}

// IdempotencyKey identifies the event independent of transport redelivery.
func (e BusinessEvent) IdempotencyKey() string {
	return "ledger:" + strconv.FormatInt(e.BusinessID, 10) + ":" + e.EventCode + ":" + e.SourceType + ":" + e.SourceID
}

// PostInput converts the envelope into an engine request.
func (e BusinessEvent) PostInput() (journals.PostInput, error) {
	date, err := time.Parse(time.DateOnly, e.JournalDate)
	if err != nil {
		return journals.PostInput{}, fmt.Errorf("%w: journal_date: %v", shared.ErrInvalidPosting, err)
	}
	ectx := event.Context{}
	if len(e.Context) > 0 && string(e.Context) != "null" {
		ectx, err = event.ParseContext(e.Context)
		if err != nil {
			return journals.PostInput{}, fmt.Errorf("%w: %v", shared.ErrInvalidContext, err)
		}
	}
	return journals.PostInput{
		BusinessID:  e.BusinessID,
		EventCode:   e.EventCode,
		SourceType:  e.SourceType,
		SourceID:    e.SourceID,
		JournalDate: date,
		Context:     ectx,
		Description: e.Description,
	}, nil
}
