package periods

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalshared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	periods map[int64]Period
	// bumpBeforeWrite simulates another writer winning the race.
	bumpBeforeWrite bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{periods: map[int64]Period{}}
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[id]
	if !ok {
		return Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (m *memoryRepo) FindByDate(_ context.Context, businessID int64, date time.Time) (Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periods {
		if p.BusinessID == businessID && p.Contains(date) {
			return p, nil
		}
	}
	return Period{}, shared.ErrNoPeriodDefined
}

func (m *memoryRepo) ListByBusiness(_ context.Context, businessID int64) ([]Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Period
	for _, p := range m.periods {
		if p.BusinessID == businessID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRepo) Transition(_ context.Context, t transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.periods[t.PeriodID]
	if m.bumpBeforeWrite {
		p.Version++
		m.periods[t.PeriodID] = p
	}
	if p.Version != t.Version {
		return shared.ErrConcurrentPeriodTransition
	}
	p.Status = t.Target
	p.ClosedAt = t.ClosedAt
	p.ClosedBy = t.ClosedBy
	p.Version++
	m.periods[t.PeriodID] = p
	return nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &memoryTx{repo: m})
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) LockBusiness(context.Context, int64) error { return nil }

func (t *memoryTx) HasOverlap(_ context.Context, businessID int64, start, end time.Time) (bool, error) {
	for _, p := range t.repo.periods {
		if p.BusinessID == businessID && Overlaps(p.StartDate, p.EndDate, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) Insert(_ context.Context, in CreatePeriodInput) (Period, error) {
	t.repo.nextID++
	p := Period{ID: t.repo.nextID, BusinessID: in.BusinessID, StartDate: in.StartDate, EndDate: in.EndDate, Status: PeriodStatusOpen, Version: 1}
	t.repo.periods[p.ID] = p
	return p, nil
}

type recordingAudit struct {
	logs []internalshared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log internalshared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestManager() (*Manager, *memoryRepo, *recordingAudit) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	mgr := NewManager(repo, audit, nil)
	mgr.WithNow(func() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) })
	return mgr, repo, audit
}

func TestCreatePeriodRejectsOverlap(t *testing.T) {
	mgr, _, _ := newTestManager()
	ctx := context.Background()

	jan, err := mgr.CreatePeriod(ctx, CreatePeriodInput{BusinessID: 1, StartDate: date("2026-01-01"), EndDate: date("2026-01-31")})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, jan.Status)

	_, err = mgr.CreatePeriod(ctx, CreatePeriodInput{BusinessID: 1, StartDate: date("2026-01-31"), EndDate: date("2026-02-28")})
	require.ErrorIs(t, err, shared.ErrPeriodOverlap)

	_, err = mgr.CreatePeriod(ctx, CreatePeriodInput{BusinessID: 2, StartDate: date("2026-01-15"), EndDate: date("2026-02-15")})
	require.NoError(t, err, "other businesses do not collide")

	_, err = mgr.CreatePeriod(ctx, CreatePeriodInput{BusinessID: 1, StartDate: date("2026-03-31"), EndDate: date("2026-03-01")})
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)
}

func TestResolvePeriod(t *testing.T) {
	mgr, _, _ := newTestManager()
	ctx := context.Background()
	_, err := mgr.CreatePeriod(ctx, CreatePeriodInput{BusinessID: 1, StartDate: date("2026-01-01"), EndDate: date("2026-01-31")})
	require.NoError(t, err)

	p, err := mgr.ResolvePeriod(ctx, 1, date("2026-01-31"))
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)

	_, err = mgr.ResolvePeriod(ctx, 1, date("2026-02-01"))
	require.ErrorIs(t, err, shared.ErrNoPeriodDefined)
}

func TestCloseThenReopenRestoresOpen(t *testing.T) {
	mgr, _, audit := newTestManager()
	ctx := context.Background()
	p, err := mgr.CreatePeriod(ctx, CreatePeriodInput{BusinessID: 1, StartDate: date("2026-01-01"), EndDate: date("2026-01-31")})
	require.NoError(t, err)

	closed, err := mgr.ClosePeriod(ctx, p.ID, 7)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	require.Equal(t, int64(7), *closed.ClosedBy)
	require.ErrorIs(t, AssertPostable(closed), shared.ErrPeriodClosed)

	reopened, err := mgr.ReopenPeriod(ctx, p.ID, 7)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, reopened.Status)
	require.Nil(t, reopened.ClosedAt)
	require.Nil(t, reopened.ClosedBy)
	require.Equal(t, int64(3), reopened.Version)
	require.NoError(t, AssertPostable(reopened))

	require.Len(t, audit.logs, 2)
	require.Equal(t, "period.close", audit.logs[0].Action)
	require.Equal(t, "period.reopen", audit.logs[1].Action)
}

func TestLockedIsTerminal(t *testing.T) {
	mgr, _, _ := newTestManager()
	ctx := context.Background()
	p, err := mgr.CreatePeriod(ctx, CreatePeriodInput{BusinessID: 1, StartDate: date("2026-01-01"), EndDate: date("2026-01-31")})
	require.NoError(t, err)

	locked, err := mgr.LockPeriod(ctx, p.ID, 7)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusLocked, locked.Status)
	require.ErrorIs(t, AssertPostable(locked), shared.ErrPeriodLocked)

	_, err = mgr.ReopenPeriod(ctx, p.ID, 7)
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
	_, err = mgr.ClosePeriod(ctx, p.ID, 7)
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
}

func TestTransitionsRequireActorAndValidState(t *testing.T) {
	mgr, _, _ := newTestManager()
	ctx := context.Background()
	p, err := mgr.CreatePeriod(ctx, CreatePeriodInput{BusinessID: 1, StartDate: date("2026-01-01"), EndDate: date("2026-01-31")})
	require.NoError(t, err)

	_, err = mgr.ClosePeriod(ctx, p.ID, 0)
	require.ErrorIs(t, err, shared.ErrActorRequired)

	_, err = mgr.ReopenPeriod(ctx, p.ID, 7)
	require.ErrorIs(t, err, internalshared.ErrInvalidPeriodTransition)

	_, err = mgr.ClosePeriod(ctx, 404, 7)
	require.ErrorIs(t, err, shared.ErrPeriodNotFound)
}

func TestConcurrentTransitionDetected(t *testing.T) {
	mgr, repo, audit := newTestManager()
	ctx := context.Background()
	p, err := mgr.CreatePeriod(ctx, CreatePeriodInput{BusinessID: 1, StartDate: date("2026-01-01"), EndDate: date("2026-01-31")})
	require.NoError(t, err)

	repo.bumpBeforeWrite = true
	_, err = mgr.ClosePeriod(ctx, p.ID, 7)
	require.ErrorIs(t, err, shared.ErrConcurrentPeriodTransition)
	require.Empty(t, audit.logs)
}

func TestAssertPostable(t *testing.T) {
	require.NoError(t, AssertPostable(Period{Status: PeriodStatusOpen}))
	require.ErrorIs(t, AssertPostable(Period{Status: PeriodStatusClosed}), shared.ErrPeriodClosed)
	require.ErrorIs(t, AssertPostable(Period{Status: PeriodStatusLocked}), shared.ErrPeriodLocked)
	require.ErrorIs(t, AssertPostable(Period{Status: "archived"}), shared.ErrInvalidPeriod)
}
