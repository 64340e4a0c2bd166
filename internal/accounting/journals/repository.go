package journals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/event"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalshared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, businessID, entryID int64) (JournalEntry, error)
	ListLedger(ctx context.Context, f LedgerFilter, after *internalshared.Cursor, limit int) ([]JournalEntry, error)
}

// TxRepository exposes the reads and writes of one posting transaction.
type TxRepository interface {
	ClaimIdempotencyKey(ctx context.Context, key string) error
	LockPeriodForPosting(ctx context.Context, businessID int64, date time.Time) (periods.Period, error)
	GetEntry(ctx context.Context, businessID, entryID int64) (JournalEntry, error)
	HasReversal(ctx context.Context, entryID int64) (bool, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error)
}

type repository struct {
	db db.TxBeginner
}

func NewRepository(pool db.TxBeginner) Repository {
	return &repository{db: pool}
}

// WithTx runs fn under READ COMMITTED; the period row lock orders postings
// against transitions.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetEntry(ctx context.Context, businessID, entryID int64) (JournalEntry, error) {
	return getEntry(ctx, r.db, businessID, entryID)
}

func (r *repository) ListLedger(ctx context.Context, f LedgerFilter, after *internalshared.Cursor, limit int) ([]JournalEntry, error) {
	var afterDate *time.Time
	var afterID int64
	if after != nil {
		afterDate = &after.Date
		afterID = after.ID
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries e
WHERE e.business_id=$1
  AND ($2::date IS NULL OR e.journal_date >= $2::date)
  AND ($3::date IS NULL OR e.journal_date <= $3::date)
  AND ($4::text = '' OR EXISTS (
      SELECT 1 FROM journal_lines l JOIN accounts a ON a.id = l.account_id
      WHERE l.journal_entry_id = e.id AND a.business_id = e.business_id AND a.code = $4::text))
  AND ($5::date IS NULL OR (e.journal_date, e.id) > ($5::date, $6::bigint))
ORDER BY e.journal_date, e.id
LIMIT $7`, f.BusinessID, f.DateFrom, f.DateTo, f.AccountCode, afterDate, afterID, limit)
	if err != nil {
		return nil, err
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	if err := attachLines(ctx, r.db, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

type txRepository struct {
	tx pgx.Tx
}

// IdempotencyModule tags the keys claimed by postings.
const IdempotencyModule = "ledger.post"

func (r *txRepository) ClaimIdempotencyKey(ctx context.Context, key string) error {
	err := internalshared.NewIdempotencyStore(r.tx).CheckAndInsert(ctx, key, IdempotencyModule)
	if errors.Is(err, internalshared.ErrIdempotencyConflict) {
		return fmt.Errorf("%w: %s", shared.ErrDuplicatePosting, key)
	}
	return err
}

func (r *txRepository) LockPeriodForPosting(ctx context.Context, businessID int64, date time.Time) (periods.Period, error) {
	return periods.LockForPosting(ctx, r.tx, businessID, date)
}

func (r *txRepository) GetEntry(ctx context.Context, businessID, entryID int64) (JournalEntry, error) {
	return getEntry(ctx, r.tx, businessID, entryID)
}

func (r *txRepository) HasReversal(ctx context.Context, entryID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entries WHERE reversal_of_id=$1)`, entryID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	ctxJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("journals: encode context: %w", err)
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(business_id, period_id, event_code, source_type, source_id, source_ref, journal_date, description, context, reversal_of_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
		entry.BusinessID, entry.PeriodID, entry.EventCode, entry.SourceType, entry.SourceID, entry.SourceRef,
		entry.JournalDate, entry.Description, ctxJSON, entry.ReversalOfID)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		if db.SQLState(err) == db.CodeUniqueViolation && entry.ReversalOfID != nil {
			return JournalEntry{}, shared.ErrAlreadyReversed
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

// InsertLines writes every line in one round trip.
func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error) {
	batch := &pgx.Batch{}
	out := make([]JournalLine, len(lines))
	for i, line := range lines {
		line.JournalEntryID = entryID
		out[i] = line
		batch.Queue(`INSERT INTO journal_lines
(journal_entry_id, account_id, direction, amount, finance_user_id, channel_type, channel_id, customer_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
			entryID, line.AccountID, line.Direction, line.Amount, line.FinanceUserID, line.ChannelType, line.ChannelID, line.CustomerID)
	}
	results := r.tx.SendBatch(ctx, batch)
	for i := range out {
		if err := results.QueryRow().Scan(&out[i].ID); err != nil {
			_ = results.Close()
			return nil, err
		}
	}
	if err := results.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

const entryColumns = `e.id, e.business_id, e.period_id, e.event_code, e.source_type, e.source_id, e.source_ref,
e.journal_date, e.description, e.context, e.reversal_of_id, e.created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e   JournalEntry
		raw []byte
	)
	if err := row.Scan(&e.ID, &e.BusinessID, &e.PeriodID, &e.EventCode, &e.SourceType, &e.SourceID, &e.SourceRef,
		&e.JournalDate, &e.Description, &raw, &e.ReversalOfID, &e.CreatedAt); err != nil {
		return JournalEntry{}, err
	}
	ectx, err := event.ParseContext(raw)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("journals: entry %d context: %w", e.ID, err)
	}
	e.Context = ectx
	return e, nil
}

func collectEntries(rows pgx.Rows) ([]JournalEntry, error) {
	defer rows.Close()
	var out []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func getEntry(ctx context.Context, q db.Querier, businessID, entryID int64) (JournalEntry, error) {
	e, err := scanEntry(q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries e WHERE e.business_id=$1 AND e.id=$2`, businessID, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, fmt.Errorf("%w: %d in business %d", shared.ErrJournalNotFound, entryID, businessID)
		}
		return JournalEntry{}, err
	}
	entries := []JournalEntry{e}
	if err := attachLines(ctx, q, entries); err != nil {
		return JournalEntry{}, err
	}
	return entries[0], nil
}

// attachLines loads the lines of every entry with one query.
func attachLines(ctx context.Context, q db.Querier, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]int64, len(entries))
	index := make(map[int64]int, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		index[e.ID] = i
	}
	rows, err := q.Query(ctx, `SELECT id, journal_entry_id, account_id, direction, amount, finance_user_id, channel_type, channel_id, customer_id
FROM journal_lines WHERE journal_entry_id = ANY($1) ORDER BY journal_entry_id, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.JournalEntryID, &l.AccountID, &l.Direction, &l.Amount, &l.FinanceUserID, &l.ChannelType, &l.ChannelID, &l.CustomerID); err != nil {
			return err
		}
		i := index[l.JournalEntryID]
		entries[i].Lines = append(entries[i].Lines, l)
	}
	return rows.Err()
}

// UnbalancedEntry is a row reported by the integrity scan.
type UnbalancedEntry struct {
	EntryID int64  `json:"entry_id"`
	Debit   string `json:"debit"`
	Credit  string `json:"credit"`
}

// FindUnbalanced lists entries of a business whose lines do not balance or
// lack a side. The deferred trigger should make this empty.
func FindUnbalanced(ctx context.Context, q db.Querier, businessID int64) ([]UnbalancedEntry, error) {
	rows, err := q.Query(ctx, `SELECT e.id,
       COALESCE(SUM(l.amount) FILTER (WHERE l.direction = 'DEBIT'), 0)::text,
       COALESCE(SUM(l.amount) FILTER (WHERE l.direction = 'CREDIT'), 0)::text
FROM journal_entries e LEFT JOIN journal_lines l ON l.journal_entry_id = e.id
WHERE e.business_id = $1
GROUP BY e.id
HAVING COALESCE(SUM(l.amount) FILTER (WHERE l.direction = 'DEBIT'), 0)
       <> COALESCE(SUM(l.amount) FILTER (WHERE l.direction = 'CREDIT'), 0)
    OR COUNT(*) FILTER (WHERE l.direction = 'DEBIT') = 0
    OR COUNT(*) FILTER (WHERE l.direction = 'CREDIT') = 0
ORDER BY e.id`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UnbalancedEntry
	for rows.Next() {
		var u UnbalancedEntry
		if err := rows.Scan(&u.EntryID, &u.Debit, &u.Credit); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// BusinessIDs lists every business that owns at least one journal entry.
func BusinessIDs(ctx context.Context, q db.Querier) ([]int64, error) {
	rows, err := q.Query(ctx, `SELECT DISTINCT business_id FROM journal_entries ORDER BY business_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
