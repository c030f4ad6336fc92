package inmemstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetSetMiss(t *testing.T) {
	c := New()
	ctx := context.Background()

	val, err := c.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, val)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	val, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
}

func TestClient_TTLExpiry(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestClient_ListCappedTrim(t *testing.T) {
	c := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.LPush(ctx, "l", []byte{byte('0' + i)}))
	}
	require.NoError(t, c.LTrim(ctx, "l", 0, 2))

	vals, err := c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Len(t, vals, 3)
	// Most recently pushed value stays at the head.
	assert.Equal(t, byte('4'), vals[0][0])
}

func TestClient_RPop(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "l", []byte("a")))
	require.NoError(t, c.LPush(ctx, "l", []byte("b")))

	v, err := c.RPop(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), v)
}

func TestClient_HIncrBy(t *testing.T) {
	c := New()
	ctx := context.Background()

	n, err := c.HIncrBy(ctx, "h", "total", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = c.HIncrBy(ctx, "h", "total", -1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestClient_ZRangeByScore(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "z", 10, "a"))
	require.NoError(t, c.ZAdd(ctx, "z", 20, "b"))
	require.NoError(t, c.ZAdd(ctx, "z", 30, "c"))

	members, err := c.ZRangeByScore(ctx, "z", 15, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, members)
}

func TestClient_SetMembers(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, "s", "x"))
	require.NoError(t, c.SAdd(ctx, "s", "y"))

	members, err := c.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, members)
}

func TestClient_KeysPrefix(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "action:1", []byte("{}"), 0))
	require.NoError(t, c.Set(ctx, "action:2", []byte("{}"), 0))
	require.NoError(t, c.Set(ctx, "incident:1", []byte("{}"), 0))

	keys, err := c.Keys(ctx, "action:")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestClient_ExpireOnList(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "l", []byte("a")))
	require.NoError(t, c.Expire(ctx, "l", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	vals, err := c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, vals)
}
