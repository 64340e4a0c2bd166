package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalshared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository persists accounting periods.
type Repository interface {
	Get(ctx context.Context, periodID int64) (Period, error)
	FindByDate(ctx context.Context, businessID int64, date time.Time) (Period, error)
	ListByBusiness(ctx context.Context, businessID int64) ([]Period, error)
	Transition(ctx context.Context, t transition) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the period writes that must share a transaction.
type TxRepository interface {
	LockBusiness(ctx context.Context, businessID int64) error
	HasOverlap(ctx context.Context, businessID int64, start, end time.Time) (bool, error)
	Insert(ctx context.Context, in CreatePeriodInput) (Period, error)
}

type repository struct {
	db db.TxBeginner
}

func NewRepository(pool db.TxBeginner) Repository {
	return &repository{db: pool}
}

const periodColumns = `id, business_id, start_date, end_date, status, closed_at, closed_by, version, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.BusinessID, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) Get(ctx context.Context, periodID int64) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE id=$1`, periodID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) FindByDate(ctx context.Context, businessID int64, date time.Time) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE business_id=$1 AND $2::date BETWEEN start_date AND end_date`, businessID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrNoPeriodDefined
		}
		return Period{}, err
	}
	return p, nil
}

// LockForPosting resolves the period covering date and holds a share lock on
// it until q's transaction ends. Transitions update the row, so they wait for
// in-flight postings and postings wait for in-flight transitions.
func LockForPosting(ctx context.Context, q db.Querier, businessID int64, date time.Time) (Period, error) {
	p, err := scanPeriod(q.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE business_id=$1 AND $2::date BETWEEN start_date AND end_date FOR SHARE`, businessID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrNoPeriodDefined
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) ListByBusiness(ctx context.Context, businessID int64) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE business_id=$1 ORDER BY start_date`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Transition(ctx context.Context, t transition) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounting_periods
SET status=$3, closed_at=$4, closed_by=$5, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$2`, t.PeriodID, t.Version, t.Target, t.ClosedAt, t.ClosedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrConcurrentPeriodTransition
	}
	return nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockBusiness(ctx context.Context, businessID int64) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, internalshared.PeriodLockKey(businessID))
	return err
}

func (r *txRepository) HasOverlap(ctx context.Context, businessID int64, start, end time.Time) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM accounting_periods WHERE business_id=$1 AND start_date <= $3::date AND end_date >= $2::date)`, businessID, start, end).Scan(&exists)
	return exists, err
}

func (r *txRepository) Insert(ctx context.Context, in CreatePeriodInput) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, `INSERT INTO accounting_periods (business_id, start_date, end_date, status)
VALUES ($1,$2,$3,'open') RETURNING `+periodColumns, in.BusinessID, in.StartDate, in.EndDate))
	if err != nil {
		if db.SQLState(err) == db.CodeExclusionViolation {
			return Period{}, shared.ErrPeriodOverlap
		}
		return Period{}, err
	}
	return p, nil
}
