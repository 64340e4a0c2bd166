package accounts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
)

type memoryRepo struct {
	// mu plays the part of the per-business tree lock.
	mu        sync.Mutex
	nextID    int64
	accounts  map[int64]Account
	listCalls int
}

func newMemoryRepo(seed ...Account) *memoryRepo {
	repo := &memoryRepo{accounts: map[int64]Account{}}
	for _, a := range seed {
		repo.accounts[a.ID] = a
		if a.ID > repo.nextID {
			repo.nextID = a.ID
		}
	}
	return repo
}

func (m *memoryRepo) ListByBusiness(_ context.Context, businessID int64) ([]Account, error) {
	m.listCalls++
	var out []Account
	for _, a := range m.accounts {
		if a.BusinessID == businessID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryRepo) Insert(_ context.Context, in CreateAccountInput) (Account, error) {
	m.nextID++
	a := Account{ID: m.nextID, BusinessID: in.BusinessID, ParentID: in.ParentID, Code: in.Code, Name: in.Name, Type: in.Type, IsActive: true}
	m.accounts[a.ID] = a
	return a, nil
}

func (m *memoryRepo) MoveParent(_ context.Context, businessID, accountID int64, parentID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.BusinessID != businessID {
		return shared.ErrAccountNotFound
	}
	for cur := parentID; cur != nil; {
		if *cur == accountID {
			return shared.ErrAccountCycle
		}
		p, ok := m.accounts[*cur]
		if !ok || p.BusinessID != businessID {
			return shared.ErrAccountNotFound
		}
		cur = p.ParentID
	}
	a.ParentID = parentID
	m.accounts[accountID] = a
	return nil
}

func (m *memoryRepo) UpdateActive(_ context.Context, businessID, accountID int64, active bool) error {
	a, ok := m.accounts[accountID]
	if !ok || a.BusinessID != businessID {
		return shared.ErrAccountNotFound
	}
	a.IsActive = active
	m.accounts[accountID] = a
	return nil
}

func ptr(v int64) *int64 { return &v }

func seedChart() []Account {
	return []Account{
		{ID: 1, BusinessID: 10, Code: "1000", Name: "Assets", Type: AccountTypeAsset, IsActive: true},
		{ID: 2, BusinessID: 10, ParentID: ptr(1), Code: "1101", Name: "Kas", Type: AccountTypeAsset, IsActive: true},
		{ID: 3, BusinessID: 10, Code: "4101", Name: "Penjualan Voucher", Type: AccountTypeRevenue, IsActive: true},
		{ID: 4, BusinessID: 10, Code: "1999", Name: "Legacy", Type: AccountTypeAsset, IsActive: false},
		{ID: 5, BusinessID: 20, Code: "1101", Name: "Kas", Type: AccountTypeAsset, IsActive: true},
	}
}

func newCachedRegistry(t *testing.T, repo Repository) *Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRegistry(repo, cache.NewVersioned(client, time.Minute), nil)
}

func TestResolveAccountsByCode(t *testing.T) {
	reg := NewRegistry(newMemoryRepo(seedChart()...), nil, nil)
	ctx := context.Background()

	found, err := reg.ResolveAccountsByCode(ctx, 10, []string{"1101", "4101"})
	require.NoError(t, err)
	require.Equal(t, int64(2), found["1101"].ID)
	require.Equal(t, int64(3), found["4101"].ID)

	_, err = reg.ResolveAccountsByCode(ctx, 10, []string{"1101", "9999"})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
	require.Contains(t, err.Error(), "9999")

	_, err = reg.ResolveAccount(ctx, 10, "1999")
	require.ErrorIs(t, err, shared.ErrAccountNotFound, "inactive accounts do not resolve")
}

func TestResolveIsScopedToBusiness(t *testing.T) {
	reg := NewRegistry(newMemoryRepo(seedChart()...), nil, nil)
	ctx := context.Background()

	a, err := reg.ResolveAccount(ctx, 20, "1101")
	require.NoError(t, err)
	require.Equal(t, int64(5), a.ID)

	_, err = reg.ResolveAccountsByID(ctx, 20, []int64{2})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestChartIsCachedAndInvalidatedOnWrite(t *testing.T) {
	repo := newMemoryRepo(seedChart()...)
	reg := newCachedRegistry(t, repo)
	ctx := context.Background()

	_, err := reg.ResolveAccountsByID(ctx, 10, []int64{2, 3})
	require.NoError(t, err)
	_, err = reg.ResolveAccount(ctx, 10, "1101")
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls)

	created, err := reg.CreateAccount(ctx, CreateAccountInput{BusinessID: 10, ParentID: ptr(1), Code: " 1102 ", Name: "Bank", Type: AccountTypeAsset})
	require.NoError(t, err)
	require.Equal(t, "1102", created.Code)

	a, err := reg.ResolveAccount(ctx, 10, "1102")
	require.NoError(t, err)
	require.Equal(t, created.ID, a.ID)
	require.Greater(t, repo.listCalls, 1)
}

func TestCreateAccountRejectsForeignParent(t *testing.T) {
	reg := NewRegistry(newMemoryRepo(seedChart()...), nil, nil)
	_, err := reg.CreateAccount(context.Background(), CreateAccountInput{BusinessID: 20, ParentID: ptr(1), Code: "1200", Name: "Piutang", Type: AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)

	_, err = reg.CreateAccount(context.Background(), CreateAccountInput{BusinessID: 20, Code: "1200", Name: "Piutang", Type: "cash"})
	require.ErrorIs(t, err, shared.ErrInvalidAccount)
}

func TestMoveAccountRejectsCycles(t *testing.T) {
	reg := NewRegistry(newMemoryRepo(seedChart()...), nil, nil)
	ctx := context.Background()

	require.ErrorIs(t, reg.MoveAccount(ctx, 10, 1, ptr(2)), shared.ErrAccountCycle)
	require.ErrorIs(t, reg.MoveAccount(ctx, 10, 1, ptr(1)), shared.ErrAccountCycle)
	require.NoError(t, reg.MoveAccount(ctx, 10, 3, ptr(1)))
	require.NoError(t, reg.MoveAccount(ctx, 10, 2, nil))
}

func TestMoveAccountConcurrentSwapLeavesTree(t *testing.T) {
	repo := newMemoryRepo(seedChart()...)
	reg := NewRegistry(repo, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i, move := range [][2]int64{{1, 3}, {3, 1}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = reg.MoveAccount(ctx, 10, move[0], ptr(move[1]))
		}()
	}
	close(start)
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, shared.ErrAccountCycle)
			failed++
		}
	}
	require.Equal(t, 1, failed)
	one, three := repo.accounts[1], repo.accounts[3]
	require.False(t, one.ParentID != nil && three.ParentID != nil, "accounts 1 and 3 must not parent each other")
}

func TestMoveAccountIgnoresStaleCache(t *testing.T) {
	repo := newMemoryRepo(seedChart()...)
	reg := newCachedRegistry(t, repo)
	ctx := context.Background()

	_, err := reg.ResolveAccountsByID(ctx, 10, []int64{1, 3})
	require.NoError(t, err)
	// a write that never reached the cache
	require.NoError(t, repo.MoveParent(ctx, 10, 1, ptr(3)))

	require.ErrorIs(t, reg.MoveAccount(ctx, 10, 3, ptr(1)), shared.ErrAccountCycle)
	require.Nil(t, repo.accounts[3].ParentID)
}

func TestSetAccountActive(t *testing.T) {
	reg := NewRegistry(newMemoryRepo(seedChart()...), nil, nil)
	ctx := context.Background()

	require.NoError(t, reg.SetAccountActive(ctx, 10, 3, false))
	_, err := reg.ResolveAccount(ctx, 10, "4101")
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}
