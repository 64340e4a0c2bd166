package accounts

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalshared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository persists the chart of accounts.
type Repository interface {
	ListByBusiness(ctx context.Context, businessID int64) ([]Account, error)
	Insert(ctx context.Context, in CreateAccountInput) (Account, error)
	// MoveParent re-parents accountID, checking for cycles against the live
	// rows under a per-business lock.
	MoveParent(ctx context.Context, businessID, accountID int64, parentID *int64) error
	UpdateActive(ctx context.Context, businessID, accountID int64, active bool) error
}

type repository struct {
	db db.TxBeginner
}

func NewRepository(pool db.TxBeginner) Repository {
	return &repository{db: pool}
}

const accountColumns = `id, business_id, parent_id, code, name, type, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.BusinessID, &a.ParentID, &a.Code, &a.Name, &a.Type, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) ListByBusiness(ctx context.Context, businessID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE business_id=$1 ORDER BY code`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Insert(ctx context.Context, in CreateAccountInput) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (business_id, parent_id, code, name, type)
VALUES ($1,$2,$3,$4,$5) RETURNING `+accountColumns, in.BusinessID, in.ParentID, in.Code, in.Name, in.Type)
	a, err := scanAccount(row)
	if err != nil {
		switch db.SQLState(err) {
		case db.CodeUniqueViolation:
			return Account{}, fmt.Errorf("%w: code %q already exists", shared.ErrInvalidAccount, in.Code)
		case db.CodeForeignKeyViolation:
			return Account{}, fmt.Errorf("%w: parent not in business", shared.ErrAccountNotFound)
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) MoveParent(ctx context.Context, businessID, accountID int64, parentID *int64) error {
	return db.WithTx(ctx, r.db, db.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, internalshared.AccountTreeLockKey(businessID)); err != nil {
			return err
		}
		if parentID != nil {
			if err := checkAncestry(ctx, tx, businessID, accountID, *parentID); err != nil {
				return err
			}
		}
		cmd, err := tx.Exec(ctx, `UPDATE accounts SET parent_id=$3, updated_at=NOW() WHERE business_id=$1 AND id=$2`, businessID, accountID, parentID)
		if err != nil {
			if db.SQLState(err) == db.CodeForeignKeyViolation {
				return fmt.Errorf("%w: parent not in business", shared.ErrAccountNotFound)
			}
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("%w: id %d in business %d", shared.ErrAccountNotFound, accountID, businessID)
		}
		return nil
	})
}

// checkAncestry walks up from parentID over the committed chart. Meeting
// accountID on the way means the move would close a loop.
func checkAncestry(ctx context.Context, q db.Querier, businessID, accountID, parentID int64) error {
	var parentExists, loops bool
	err := q.QueryRow(ctx, `WITH RECURSIVE ancestors(id, parent_id) AS (
    SELECT id, parent_id FROM accounts WHERE business_id=$1 AND id=$2
    UNION
    SELECT a.id, a.parent_id FROM accounts a JOIN ancestors anc ON a.id = anc.parent_id
    WHERE a.business_id=$1
)
SELECT EXISTS (SELECT 1 FROM ancestors), EXISTS (SELECT 1 FROM ancestors WHERE id=$3)`,
		businessID, parentID, accountID).Scan(&parentExists, &loops)
	if err != nil {
		return err
	}
	if !parentExists {
		return fmt.Errorf("%w: parent %d in business %d", shared.ErrAccountNotFound, parentID, businessID)
	}
	if loops {
		return fmt.Errorf("%w: %d under %d", shared.ErrAccountCycle, accountID, parentID)
	}
	return nil
}

func (r *repository) UpdateActive(ctx context.Context, businessID, accountID int64, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE business_id=$1 AND id=$2`, businessID, accountID, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}
