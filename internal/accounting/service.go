// Package accounting assembles the posting engine and its configuration
// services behind one facade.
package accounting

import (
	"context"
	"iter"
	"log/slog"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/rules"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Deps carries the infrastructure the ledger is built on.
type Deps struct {
	Pool     db.TxBeginner
	Cache    *cache.Versioned
	Audit    AuditPort
	Observer journals.PostingObserver
	Logger   *slog.Logger
}

// Service exposes Post, ClosePeriod, ReopenPeriod and GetLedger, plus the
// configuration services the HTTP surface needs.
type Service struct {
	Accounts *accounts.Registry
	Periods  *periods.Manager
	Rules    *rules.Service
	Engine   *journals.Engine
}

// NewService wires repositories and services against one pool.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := accounts.NewRegistry(accounts.NewRepository(deps.Pool), deps.Cache, logger)
	ruleRepo := rules.NewRepository(deps.Pool)
	engine := journals.NewEngine(
		journals.NewRepository(deps.Pool),
		rules.NewMatcher(ruleRepo, deps.Cache, logger),
		registry,
		deps.Audit,
		logger,
	)
	if deps.Observer != nil {
		engine.WithObserver(deps.Observer)
	}
	return &Service{
		Accounts: registry,
		Periods:  periods.NewManager(periods.NewRepository(deps.Pool), deps.Audit, logger),
		Rules:    rules.NewService(ruleRepo, registry, deps.Cache, logger),
		Engine:   engine,
	}
}

// Post converts one business event into a balanced journal entry.
func (s *Service) Post(ctx context.Context, in journals.PostInput) (journals.JournalEntry, error) {
	return s.Engine.Post(ctx, in)
}

// ClosePeriod stops postings into periodID until it is reopened.
func (s *Service) ClosePeriod(ctx context.Context, periodID, actorID int64) (periods.Period, error) {
	return s.Periods.ClosePeriod(ctx, periodID, actorID)
}

// ReopenPeriod makes a closed period postable again.
func (s *Service) ReopenPeriod(ctx context.Context, periodID, actorID int64) (periods.Period, error) {
	return s.Periods.ReopenPeriod(ctx, periodID, actorID)
}

// GetLedger streams posted entries in (journal_date, id) order.
func (s *Service) GetLedger(ctx context.Context, f journals.LedgerFilter) iter.Seq2[journals.JournalEntry, error] {
	return s.Engine.GetLedger(ctx, f)
}
