package shared

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
)

func TestCheckAndInsertDetectsDuplicates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("kafka:events:0:41", "ledger.intake", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("kafka:events:0:41", "ledger.intake", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	store := NewIdempotencyStore(mock)
	if err := store.CheckAndInsert(context.Background(), "kafka:events:0:41", "ledger.intake"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	err = store.CheckAndInsert(context.Background(), "kafka:events:0:41", "ledger.intake")
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAuditRecordRequiresFields(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	logger := NewAuditLogger(mock)
	if err := logger.Record(context.Background(), AuditLog{Action: "period.close"}); err == nil {
		t.Fatal("expected validation error")
	}

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := logger.Record(context.Background(), AuditLog{ActorID: 7, Action: "period.close", Entity: "accounting_period", EntityID: "3"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
