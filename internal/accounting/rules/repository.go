package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists accounting rules.
type Repository interface {
	ListActive(ctx context.Context, businessID int64, eventCode string) ([]Rule, error)
	List(ctx context.Context, businessID int64, eventCode string) ([]Rule, error)
	Insert(ctx context.Context, rule Rule) (Rule, error)
	SetActive(ctx context.Context, businessID, ruleID int64, active bool) error
}

type repository struct {
	db db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &repository{db: q}
}

const ruleColumns = `id, business_id, event_code, rule_name, priority, condition, account_id, direction, amount_source, collector_required, is_active, created_at, updated_at`

// scanRule parses the stored condition so malformed rows fail at load time.
func scanRule(row pgx.Row) (Rule, error) {
	var (
		r   Rule
		raw []byte
	)
	if err := row.Scan(&r.ID, &r.BusinessID, &r.EventCode, &r.RuleName, &r.Priority, &raw, &r.AccountID, &r.Direction,
		&r.AmountSource, &r.CollectorRequired, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Rule{}, err
	}
	cond, err := ParseCondition(raw)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %d: %w", r.ID, err)
	}
	r.Condition = cond
	return r, nil
}

func (r *repository) query(ctx context.Context, sql string, args ...any) ([]Rule, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *repository) ListActive(ctx context.Context, businessID int64, eventCode string) ([]Rule, error) {
	return r.query(ctx, `SELECT `+ruleColumns+` FROM accounting_rules
WHERE business_id=$1 AND event_code=$2 AND is_active ORDER BY priority, id`, businessID, eventCode)
}

func (r *repository) List(ctx context.Context, businessID int64, eventCode string) ([]Rule, error) {
	return r.query(ctx, `SELECT `+ruleColumns+` FROM accounting_rules
WHERE business_id=$1 AND ($2 = '' OR event_code=$2) ORDER BY event_code, priority, id`, businessID, eventCode)
}

func (r *repository) Insert(ctx context.Context, rule Rule) (Rule, error) {
	cond, err := json.Marshal(rule.Condition)
	if err != nil {
		return Rule{}, err
	}
	inserted, err := scanRule(r.db.QueryRow(ctx, `INSERT INTO accounting_rules
(business_id, event_code, rule_name, priority, condition, account_id, direction, amount_source, collector_required, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE) RETURNING `+ruleColumns,
		rule.BusinessID, rule.EventCode, rule.RuleName, rule.Priority, cond, rule.AccountID, rule.Direction, rule.AmountSource, rule.CollectorRequired))
	if err != nil {
		if db.SQLState(err) == db.CodeForeignKeyViolation {
			return Rule{}, fmt.Errorf("%w: account %d not in business %d", shared.ErrAccountNotFound, rule.AccountID, rule.BusinessID)
		}
		return Rule{}, err
	}
	return inserted, nil
}

func (r *repository) SetActive(ctx context.Context, businessID, ruleID int64, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounting_rules SET is_active=$3, updated_at=NOW() WHERE business_id=$1 AND id=$2`, businessID, ruleID, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: rule %d not found", shared.ErrInvalidRule, ruleID)
	}
	return nil
}
