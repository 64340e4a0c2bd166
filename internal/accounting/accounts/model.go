package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is a known category.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// Account models a chart of accounts node owned by one business.
type Account struct {
	ID         int64       `json:"id"`
	BusinessID int64       `json:"business_id"`
	ParentID   *int64      `json:"parent_id,omitempty"`
	Code       string      `json:"code"`
	Name       string      `json:"name"`
	Type       AccountType `json:"type"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// CreateAccountInput describes a new chart node.
type CreateAccountInput struct {
	BusinessID int64       `json:"-"`
	ParentID   *int64      `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
	Code       string      `json:"code" validate:"required,max=32"`
	Name       string      `json:"name" validate:"required,max=200"`
	Type       AccountType `json:"type" validate:"required"`
}

// Validate normalises and checks the input.
func (in *CreateAccountInput) Validate() error {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.BusinessID <= 0 {
		return fmt.Errorf("%w: business required", shared.ErrInvalidAccount)
	}
	if in.Code == "" || in.Name == "" {
		return fmt.Errorf("%w: code and name required", shared.ErrInvalidAccount)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", shared.ErrInvalidAccount, in.Type)
	}
	return nil
}
