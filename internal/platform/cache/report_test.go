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

type report struct {
	Total string `json:"total"`
}

func newTestCache(t *testing.T) (*ReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReportCache(client, time.Minute), mr
}

func TestFetchJSONCachesUntilInvalidated(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return report{Total: "100.00"}, nil
	}

	key, err := c.BuildKey(ctx, 1, "trial_balance", "2024-01-31")
	require.NoError(t, err)
	require.Equal(t, "ledger:1:trial_balance:2024-01-31:v1", key)

	var out report
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, "100.00", out.Total)

	require.NoError(t, c.Invalidate(ctx, 1, "trial_balance"))
	key, err = c.BuildKey(ctx, 1, "trial_balance", "2024-01-31")
	require.NoError(t, err)
	require.Equal(t, "ledger:1:trial_balance:2024-01-31:v2", key)
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 2, calls)
}

func TestInvalidateIsScopedByOrganizationAndKind(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Invalidate(ctx, 1, "balance_sheet"))
	v, err := c.Version(ctx, 1, "balance_sheet")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	v, err = c.Version(ctx, 1, "trial_balance")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	v, err = c.Version(ctx, 2, "balance_sheet")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
}

func TestNilCacheCallsLoader(t *testing.T) {
	var c *ReportCache
	var out report
	err := c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return report{Total: "5"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "5", out.Total)
	require.NoError(t, c.Invalidate(context.Background(), 1, "trial_balance"))
}

func TestFetchJSONFallsBackWhenRedisIsDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()
	var out report
	err := c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return report{Total: "7"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "7", out.Total)

	err = c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
}

func TestNewAcceptsAddressAndURL(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := New(ctx, mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	client, err = New(ctx, "redis://"+mr.Addr()+"/2")
	require.NoError(t, err)
	require.Equal(t, 2, client.Options().DB)
	require.NoError(t, client.Close())

	_, err = Options("redis://:bad url")
	require.Error(t, err)
}

func TestListenKeepsMemoisedVersionsCurrent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}
	local := NewReportCache(newClient(), time.Minute)
	remote := NewReportCache(newClient(), time.Minute)
	require.NoError(t, local.Listen(ctx))

	v, err := local.Version(ctx, 1, "trial_balance")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	// A write that bypasses the bump channel is not seen while the memo is fresh.
	require.NoError(t, mr.Set(versionKey(1, "trial_balance"), "5"))
	v, err = local.Version(ctx, 1, "trial_balance")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	require.NoError(t, remote.Invalidate(ctx, 1, "trial_balance"))
	require.Eventually(t, func() bool {
		v, err := local.Version(ctx, 1, "trial_balance")
		return err == nil && v == 6
	}, 2*time.Second, 10*time.Millisecond)

	key, err := local.BuildKey(ctx, 1, "trial_balance", "2024-01-31")
	require.NoError(t, err)
	require.Equal(t, "ledger:1:trial_balance:2024-01-31:v6", key)

	cancel()
	require.Eventually(t, func() bool { return !local.listening.Load() }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, mr.Set(versionKey(1, "trial_balance"), "9"))
	v, err = local.Version(context.Background(), 1, "trial_balance")
	require.NoError(t, err)
	require.EqualValues(t, 9, v)
}

func TestParseBumpRejectsMalformedPayloads(t *testing.T) {
	key, ver, ok := parseBump("3:balance_sheet:12")
	require.True(t, ok)
	require.Equal(t, versionKey(3, "balance_sheet"), key)
	require.EqualValues(t, 12, ver)

	for _, payload := range []string{"", "3:balance_sheet", "x:balance_sheet:1", "3:balance_sheet:v2"} {
		_, _, ok := parseBump(payload)
		require.False(t, ok, payload)
	}
}
