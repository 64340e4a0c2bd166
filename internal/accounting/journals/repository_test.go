package journals

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/event"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

func TestRepositoryGetEntryNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM journal_entries e WHERE e.business_id").
		WithArgs(int64(1), int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err = NewRepository(mock).GetEntry(context.Background(), 1, 42)
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryInsertReversalTwice(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO journal_entries").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_entries_reversal"})
	mock.ExpectRollback()

	original := int64(9)
	err = NewRepository(mock).WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, err := tx.InsertEntry(ctx, JournalEntry{
			BusinessID: 1, PeriodID: 2, EventCode: "EVT", SourceType: SourceTypeReversal, SourceID: "9",
			SourceRef: SourceRef(SourceTypeReversal, "9"), JournalDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			Context: event.Context{"total_amount": event.Int(5)}, ReversalOfID: &original,
		})
		return err
	})
	require.ErrorIs(t, err, shared.ErrAlreadyReversed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUnbalanced(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("HAVING").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "debit", "credit"}).AddRow(int64(7), "10.0000", "9.0000"))

	rows, err := FindUnbalanced(context.Background(), mock, 3)
	require.NoError(t, err)
	require.Equal(t, []UnbalancedEntry{{EntryID: 7, Debit: "10.0000", Credit: "9.0000"}}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBusinessIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT DISTINCT business_id").
		WillReturnRows(pgxmock.NewRows([]string{"business_id"}).AddRow(int64(1)).AddRow(int64(3)))

	ids, err := BusinessIDs(context.Background(), mock)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryClaimIdempotencyKeyConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("ledger:1:EVT:src:1", IdempotencyModule, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err = NewRepository(mock).WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return tx.ClaimIdempotencyKey(ctx, "ledger:1:EVT:src:1")
	})
	require.ErrorIs(t, err, shared.ErrDuplicatePosting)
	require.NoError(t, mock.ExpectationsWereMet())
}
