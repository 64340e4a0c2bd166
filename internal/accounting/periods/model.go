package periods

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalshared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = internalshared.PeriodStatusOpen
	PeriodStatusClosed PeriodStatus = internalshared.PeriodStatusClosed
	PeriodStatusLocked PeriodStatus = internalshared.PeriodStatusLocked
)

// Period represents an accounting window of one business. Dates are inclusive.
type Period struct {
	ID         int64        `json:"id"`
	BusinessID int64        `json:"business_id"`
	StartDate  time.Time    `json:"start_date"`
	EndDate    time.Time    `json:"end_date"`
	Status     PeriodStatus `json:"status"`
	ClosedAt   *time.Time   `json:"closed_at,omitempty"`
	ClosedBy   *int64       `json:"closed_by,omitempty"`
	Version    int64        `json:"version"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Contains reports whether date falls inside the period, ignoring time of day.
func (p Period) Contains(date time.Time) bool {
	d := truncateDate(date)
	return !d.Before(truncateDate(p.StartDate)) && !d.After(truncateDate(p.EndDate))
}

// CreatePeriodInput captures a new period window.
type CreatePeriodInput struct {
	BusinessID int64     `json:"-"`
	StartDate  time.Time `json:"start_date" validate:"required"`
	EndDate    time.Time `json:"end_date" validate:"required"`
}

// Validate ensures the window is well formed.
func (in *CreatePeriodInput) Validate() error {
	if in.BusinessID <= 0 {
		return fmt.Errorf("%w: business required", shared.ErrInvalidPeriod)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end dates required", shared.ErrInvalidPeriod)
	}
	in.StartDate = truncateDate(in.StartDate)
	in.EndDate = truncateDate(in.EndDate)
	if in.StartDate.After(in.EndDate) {
		return fmt.Errorf("%w: start date after end date", shared.ErrInvalidPeriod)
	}
	return nil
}

// transition is a status change applied with an optimistic version check.
type transition struct {
	PeriodID int64
	Version  int64
	Target   PeriodStatus
	ClosedAt *time.Time
	ClosedBy *int64
}

// Overlaps reports whether two inclusive windows intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !truncateDate(aStart).After(truncateDate(bEnd)) && !truncateDate(bStart).After(truncateDate(aEnd))
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
