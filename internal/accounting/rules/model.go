package rules

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Direction is the side of the ledger a rule posts to.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// Valid reports whether d is DEBIT or CREDIT.
func (d Direction) Valid() bool {
	return d == Debit || d == Credit
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Debit {
		return Credit
	}
	return Debit
}

// Rule maps an event code and condition to one journal line.
type Rule struct {
	ID                int64     `json:"id"`
	BusinessID        int64     `json:"business_id"`
	EventCode         string    `json:"event_code"`
	RuleName          string    `json:"rule_name"`
	Priority          int       `json:"priority"`
	Condition         Condition `json:"condition"`
	AccountID         int64     `json:"account_id"`
	Direction         Direction `json:"direction"`
	AmountSource      string    `json:"amount_source"`
	CollectorRequired bool      `json:"collector_required"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// CreateRuleInput configures a rule. The account is given by code and
// resolved against the business chart.
type CreateRuleInput struct {
	BusinessID        int64           `json:"-"`
	EventCode         string          `json:"event_code" validate:"required,max=64"`
	RuleName          string          `json:"rule_name" validate:"required,max=200"`
	Priority          int             `json:"priority"`
	Condition         json.RawMessage `json:"condition,omitempty"`
	AccountCode       string          `json:"account_code" validate:"required"`
	Direction         Direction       `json:"direction" validate:"required"`
	AmountSource      string          `json:"amount_source" validate:"required,max=64"`
	CollectorRequired bool            `json:"collector_required"`
}

// Validate checks the input and returns the parsed condition.
func (in *CreateRuleInput) Validate() (Condition, error) {
	in.EventCode = strings.TrimSpace(in.EventCode)
	in.AmountSource = strings.TrimSpace(in.AmountSource)
	switch {
	case in.BusinessID <= 0:
		return nil, fmt.Errorf("%w: business required", shared.ErrInvalidRule)
	case in.EventCode == "":
		return nil, fmt.Errorf("%w: event code required", shared.ErrInvalidRule)
	case in.AmountSource == "":
		return nil, fmt.Errorf("%w: amount source required", shared.ErrInvalidRule)
	case !in.Direction.Valid():
		return nil, fmt.Errorf("%w: direction must be DEBIT or CREDIT", shared.ErrInvalidRule)
	case in.Priority < 0:
		return nil, fmt.Errorf("%w: priority must not be negative", shared.ErrInvalidRule)
	}
	return ParseCondition(in.Condition)
}

// Less orders rules by priority, then id.
func Less(a, b Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}
