package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalshared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log internalshared.AuditLog) error
}

// Manager owns the period state machine.
type Manager struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(repo Repository, audit AuditPort, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{repo: repo, audit: audit, logger: logger, now: time.Now}
}

func (m *Manager) WithNow(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// AssertPostable rejects closed and locked periods.
func AssertPostable(p Period) error {
	switch p.Status {
	case PeriodStatusOpen:
		return nil
	case PeriodStatusClosed:
		return shared.ErrPeriodClosed
	case PeriodStatusLocked:
		return shared.ErrPeriodLocked
	}
	return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidPeriod, p.Status)
}

// CreatePeriod opens a new period. Creation is serialised per business and
// refused when the window intersects an existing period.
func (m *Manager) CreatePeriod(ctx context.Context, in CreatePeriodInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	var created Period
	err := m.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockBusiness(ctx, in.BusinessID); err != nil {
			return err
		}
		overlap, err := tx.HasOverlap(ctx, in.BusinessID, in.StartDate, in.EndDate)
		if err != nil {
			return err
		}
		if overlap {
			return shared.ErrPeriodOverlap
		}
		created, err = tx.Insert(ctx, in)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrPeriodOverlap) {
			return Period{}, fmt.Errorf("%w: %s..%s in business %d", shared.ErrPeriodOverlap,
				in.StartDate.Format(time.DateOnly), in.EndDate.Format(time.DateOnly), in.BusinessID)
		}
		return Period{}, err
	}
	return created, nil
}

// GetPeriod returns a period by id.
func (m *Manager) GetPeriod(ctx context.Context, periodID int64) (Period, error) {
	return m.repo.Get(ctx, periodID)
}

// ListPeriods returns the periods of a business ordered by start date.
func (m *Manager) ListPeriods(ctx context.Context, businessID int64) ([]Period, error) {
	return m.repo.ListByBusiness(ctx, businessID)
}

// ResolvePeriod finds the period whose window contains date.
func (m *Manager) ResolvePeriod(ctx context.Context, businessID int64, date time.Time) (Period, error) {
	p, err := m.repo.FindByDate(ctx, businessID, date)
	if err != nil {
		if errors.Is(err, shared.ErrNoPeriodDefined) {
			return Period{}, fmt.Errorf("%w: %s in business %d", shared.ErrNoPeriodDefined, date.Format(time.DateOnly), businessID)
		}
		return Period{}, err
	}
	return p, nil
}

// ClosePeriod moves an open period to closed and records who closed it.
func (m *Manager) ClosePeriod(ctx context.Context, periodID, actorID int64) (Period, error) {
	return m.apply(ctx, periodID, actorID, PeriodStatusClosed, "period.close")
}

// ReopenPeriod moves a closed period back to open.
func (m *Manager) ReopenPeriod(ctx context.Context, periodID, actorID int64) (Period, error) {
	return m.apply(ctx, periodID, actorID, PeriodStatusOpen, "period.reopen")
}

// LockPeriod archives a period. Locked periods never change again.
func (m *Manager) LockPeriod(ctx context.Context, periodID, actorID int64) (Period, error) {
	return m.apply(ctx, periodID, actorID, PeriodStatusLocked, "period.lock")
}

func (m *Manager) apply(ctx context.Context, periodID, actorID int64, target PeriodStatus, action string) (Period, error) {
	if actorID <= 0 {
		return Period{}, shared.ErrActorRequired
	}
	current, err := m.repo.Get(ctx, periodID)
	if err != nil {
		return Period{}, err
	}
	if current.Status == PeriodStatusLocked {
		return Period{}, fmt.Errorf("%w: period %d", shared.ErrPeriodLocked, periodID)
	}
	if err := internalshared.ValidatePeriodTransition(string(current.Status), string(target)); err != nil {
		return Period{}, fmt.Errorf("%w: %s to %s", err, current.Status, target)
	}

	next := current
	next.Status = target
	switch target {
	case PeriodStatusOpen:
		next.ClosedAt, next.ClosedBy = nil, nil
	case PeriodStatusClosed:
		at := m.now()
		next.ClosedAt, next.ClosedBy = &at, &actorID
	case PeriodStatusLocked:
		if next.ClosedAt == nil {
			at := m.now()
			next.ClosedAt, next.ClosedBy = &at, &actorID
		}
	}

	err = m.repo.Transition(ctx, transition{
		PeriodID: current.ID,
		Version:  current.Version,
		Target:   target,
		ClosedAt: next.ClosedAt,
		ClosedBy: next.ClosedBy,
	})
	if err != nil {
		if errors.Is(err, shared.ErrConcurrentPeriodTransition) {
			m.logger.Warn("period transition lost race",
				slog.Int64("period_id", periodID), slog.String("target", string(target)), slog.Int64("version", current.Version))
		}
		return Period{}, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = m.now()

	m.logger.Info("period transition",
		slog.Int64("period_id", periodID), slog.Int64("business_id", current.BusinessID),
		slog.String("from", string(current.Status)), slog.String("to", string(target)), slog.Int64("actor_id", actorID))
	if m.audit != nil {
		_ = m.audit.Record(ctx, internalshared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "accounting_period",
			EntityID: strconv.FormatInt(periodID, 10),
			Meta: map[string]any{
				"business_id": current.BusinessID,
				"from":        current.Status,
				"to":          target,
			},
			At: m.now(),
		})
	}
	return next, nil
}
