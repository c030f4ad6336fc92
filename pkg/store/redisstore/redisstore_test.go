package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb), mr
}

func TestClient_GetSetRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	val, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, c.Set(ctx, "baseline:checkout:cpu", []byte(`{"mean":42}`), time.Hour))

	got, err := c.Get(ctx, "baseline:checkout:cpu")
	require.NoError(t, err)
	assert.Equal(t, `{"mean":42}`, string(got))
}

func TestClient_SetExpiry(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetEx(ctx, "action:1", time.Second, []byte("pending")))
	mr.FastForward(2 * time.Second)

	val, err := c.Get(ctx, "action:1")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestClient_ListOperations(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for _, v := range []string{"c", "b", "a"} {
		require.NoError(t, c.LPush(ctx, "recent_anomalies:checkout", []byte(v)))
	}

	vals, err := c.LRange(ctx, "recent_anomalies:checkout", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, vals)

	require.NoError(t, c.LTrim(ctx, "recent_anomalies:checkout", 0, 1))
	vals, err = c.LRange(ctx, "recent_anomalies:checkout", 0, -1)
	require.NoError(t, err)
	assert.Len(t, vals, 2)

	n, err := c.LLen(ctx, "recent_anomalies:checkout")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClient_HashIncrement(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	n, err := c.HIncrBy(ctx, "action_success_rate:rollback:checkout", "total", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.HIncrBy(ctx, "action_success_rate:rollback:checkout", "total", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClient_SortedSetRange(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "deployments:checkout", 100, "v1.0.0"))
	require.NoError(t, c.ZAdd(ctx, "deployments:checkout", 200, "v1.0.1"))
	require.NoError(t, c.ZAdd(ctx, "deployments:checkout", 300, "v1.0.2"))

	members, err := c.ZRangeByScore(ctx, "deployments:checkout", 150, 250)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.0.1"}, members)
}

func TestClient_Keys_PrefixScan(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "incident_analysis:a1", []byte("{}"), 0))
	require.NoError(t, c.Set(ctx, "incident_analysis:a2", []byte("{}"), 0))
	require.NoError(t, c.Set(ctx, "repeat_pattern:x1", []byte("{}"), 0))

	keys, err := c.Keys(ctx, "incident_analysis:")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestClient_Ping(t *testing.T) {
	c, _ := newTestClient(t)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestClient_ExpireOnList(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "recent_anomalies:checkout", []byte("a")))
	require.NoError(t, c.Expire(ctx, "recent_anomalies:checkout", time.Second))
	mr.FastForward(2 * time.Second)

	vals, err := c.LRange(ctx, "recent_anomalies:checkout", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, vals)
}
