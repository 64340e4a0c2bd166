package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Codes []string `json:"codes"`
}

func newTestCache(t *testing.T) *Versioned {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, time.Minute)
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	scope := BusinessScope(7)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return doc{Codes: []string{"1101", "4101"}}, nil
	}

	key, err := c.BuildKey(ctx, scope, "accounts")
	require.NoError(t, err)
	require.Equal(t, "ledger:business:7:accounts:v1", key)

	var got doc
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, []string{"1101", "4101"}, got.Codes)

	require.NoError(t, c.Bump(ctx, scope))
	key, err = c.BuildKey(ctx, scope, "accounts")
	require.NoError(t, err)
	require.Equal(t, "ledger:business:7:accounts:v2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &got, loader))
	require.Equal(t, 2, calls)
}

func TestBumpIsScopedPerBusiness(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Bump(ctx, BusinessScope(1)))
	require.NoError(t, c.Bump(ctx, BusinessScope(1)))

	v1, err := c.Version(ctx, BusinessScope(1))
	require.NoError(t, err)
	v2, err := c.Version(ctx, BusinessScope(2))
	require.NoError(t, err)
	require.Equal(t, int64(2), v1)
	require.Equal(t, int64(1), v2)
}

func TestFetchJSONPropagatesLoaderError(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	boom := errors.New("db down")

	var got doc
	err := c.FetchJSON(ctx, "ledger:business:1:rules", &got, func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestNilClientPassesThrough(t *testing.T) {
	ctx := context.Background()
	c := NewVersioned(nil, time.Minute)

	key, err := c.BuildKey(ctx, BusinessScope(3), "rules", "VOUCHER_SOLD")
	require.NoError(t, err)
	require.Equal(t, "ledger:business:3:rules:VOUCHER_SOLD", key)

	calls := 0
	var got doc
	for i := 0; i < 2; i++ {
		require.NoError(t, c.FetchJSON(ctx, key, &got, func(context.Context) (any, error) {
			calls++
			return doc{Codes: []string{"x"}}, nil
		}))
	}
	require.Equal(t, 2, calls)
}
