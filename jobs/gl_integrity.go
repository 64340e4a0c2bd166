package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/panjf2000/ants/v2"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// IntegrityFinding is one stored entry that failed the balance check.
type IntegrityFinding struct {
	BusinessID int64
	journals.UnbalancedEntry
}

// GLIntegrityJob scans stored journal entries for balance violations.
type GLIntegrityJob struct {
	DB      db.Querier
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Workers int
}

// NewGLIntegrityJob initialises the integrity scan handler.
func NewGLIntegrityJob(q db.Querier, logger *slog.Logger, metrics *jobmetrics.Metrics, workers int) *GLIntegrityJob {
	return &GLIntegrityJob{DB: q, Logger: logger, Metrics: metrics, Workers: workers}
}

// Handle executes the integrity scan.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.DB == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload GLIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("gl integrity: payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.Metrics.Track(TaskGLIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	logger := j.logger().With(slog.String("job", TaskGLIntegrity))
	logger.Info("starting gl integrity scan", slog.Int64("business_id", payload.BusinessID))

	findings, scanned, err := j.Scan(ctx, payload.BusinessID)
	for _, f := range findings {
		logger.Error("unbalanced journal entry",
			slog.Int64("business_id", f.BusinessID),
			slog.Int64("entry_id", f.EntryID),
			slog.String("debit", f.Debit),
			slog.String("credit", f.Credit),
		)
		j.Metrics.AddAnomalies("critical", f.BusinessID, 1)
	}
	if err != nil {
		logger.Error("gl integrity scan failed", slog.Any("error", err))
		return err
	}
	logger.Info("completed gl integrity scan",
		slog.Int("businesses", scanned),
		slog.Int("anomalies", len(findings)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Scan checks one business, or every business when businessID is zero, fanning
// out over a bounded worker pool. Findings from businesses that scanned
// successfully are returned even when others failed.
func (j *GLIntegrityJob) Scan(ctx context.Context, businessID int64) ([]IntegrityFinding, int, error) {
	businesses := []int64{businessID}
	if businessID <= 0 {
		ids, err := journals.BusinessIDs(ctx, j.DB)
		if err != nil {
			return nil, 0, fmt.Errorf("gl integrity: list businesses: %w", err)
		}
		businesses = ids
	}
	if len(businesses) == 0 {
		return nil, 0, nil
	}

	workers := j.Workers
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, 0, err
	}
	defer pool.Release()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		findings []IntegrityFinding
		errs     []error
	)
	for _, id := range businesses {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			rows, err := journals.FindUnbalanced(ctx, j.DB, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("business %d: %w", id, err))
				return
			}
			for _, row := range rows {
				findings = append(findings, IntegrityFinding{BusinessID: id, UnbalancedEntry: row})
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("business %d: %w", id, submitErr))
			mu.Unlock()
		}
	}
	wg.Wait()
	return findings, len(businesses), errors.Join(errs...)
}

func (j *GLIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
