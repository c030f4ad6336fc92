// Package inmemstore is an in-process KeyValueStore backed by a mutex-guarded
// map. It exists for fast unit tests of components that only need the
// store's semantics (TTL expiry, list trimming, sorted-set ranges) without a
// network round trip; pkg/store/redisstore is exercised against miniredis
// for the real wire-compatible behavior.
package inmemstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ai-autopilot/incident-core/pkg/store"
)

type entry struct {
	val       []byte
	expiresAt time.Time // zero means no TTL
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Client is an in-memory KeyValueStore implementation.
type Client struct {
	mu      sync.Mutex
	scalars map[string]entry
	lists   map[string][][]byte
	hashes  map[string]map[string][]byte
	zsets   map[string]map[string]float64
	sets    map[string]map[string]bool

	// expiries tracks Expire deadlines for non-scalar keys; scalar TTLs
	// live on the entry itself. Checked lazily on access.
	expiries map[string]time.Time
}

// New returns an empty in-memory store. TTLs are enforced lazily on read.
func New() *Client {
	c := &Client{
		scalars:  make(map[string]entry),
		lists:    make(map[string][][]byte),
		hashes:   make(map[string]map[string][]byte),
		zsets:    make(map[string]map[string]float64),
		sets:     make(map[string]map[string]bool),
		expiries: make(map[string]time.Time),
	}
	return c
}

var _ store.KeyValueStore = (*Client)(nil)

func (c *Client) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.scalars[key]
	if !ok || e.expired(time.Now()) {
		return nil, nil
	}
	return e.val, nil
}

func (c *Client) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{val: val}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.scalars[key] = e
	return nil
}

func (c *Client) SetEx(ctx context.Context, key string, ttl time.Duration, val []byte) error {
	return c.Set(ctx, key, val, ttl)
}

func (c *Client) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scalars, key)
	delete(c.lists, key)
	delete(c.hashes, key)
	delete(c.zsets, key)
	delete(c.sets, key)
	delete(c.expiries, key)
	return nil
}

func (c *Client) LPush(_ context.Context, key string, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpired(key)
	c.lists[key] = append([][]byte{val}, c.lists[key]...)
	return nil
}

func (c *Client) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpired(key)
	l := c.lists[key]
	n := int64(len(l))
	if n == 0 {
		return nil, nil
	}
	s, e := normalizeRange(start, stop, n)
	if s > e {
		return nil, nil
	}
	out := make([][]byte, e-s+1)
	copy(out, l[s:e+1])
	return out, nil
}

func (c *Client) LTrim(_ context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	n := int64(len(l))
	if n == 0 {
		return nil
	}
	s, e := normalizeRange(start, stop, n)
	if s > e {
		c.lists[key] = nil
		return nil
	}
	c.lists[key] = append([][]byte{}, l[s:e+1]...)
	return nil
}

func (c *Client) LRem(_ context.Context, key string, count int64, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	out := make([][]byte, 0, len(l))
	removed := int64(0)
	for _, v := range l {
		if string(v) == string(val) && (count == 0 || removed < count) {
			removed++
			continue
		}
		out = append(out, v)
	}
	c.lists[key] = out
	return nil
}

func (c *Client) LLen(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpired(key)
	return int64(len(c.lists[key])), nil
}

func (c *Client) RPop(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpired(key)
	l := c.lists[key]
	if len(l) == 0 {
		return nil, nil
	}
	v := l[len(l)-1]
	c.lists[key] = l[:len(l)-1]
	return v, nil
}

func (c *Client) HSet(_ context.Context, key, field string, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		c.hashes[key] = h
	}
	h[field] = val
	return nil
}

func (c *Client) HGet(_ context.Context, key, field string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpired(key)
	return c.hashes[key][field], nil
}

func (c *Client) HIncrBy(_ context.Context, key, field string, n int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		c.hashes[key] = h
	}
	cur, _ := strconv.ParseInt(string(h[field]), 10, 64)
	cur += n
	h[field] = []byte(strconv.FormatInt(cur, 10))
	return cur, nil
}

func (c *Client) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpired(key)
	out := make(map[string][]byte, len(c.hashes[key]))
	for k, v := range c.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (c *Client) ZAdd(_ context.Context, key string, score float64, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok {
		z = make(map[string]float64)
		c.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (c *Client) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpired(key)
	z := c.zsets[key]
	type pair struct {
		member string
		score  float64
	}
	var pairs []pair
	for m, s := range z {
		if s >= min && s <= max {
			pairs = append(pairs, pair{m, s})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.member
	}
	return out, nil
}

func (c *Client) ZRem(_ context.Context, key string, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.zsets[key], member)
	return nil
}

func (c *Client) SAdd(_ context.Context, key string, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[key]
	if !ok {
		s = make(map[string]bool)
		c.sets[key] = s
	}
	s[member] = true
	return nil
}

func (c *Client) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpired(key)
	out := make([]string, 0, len(c.sets[key]))
	for m := range c.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// sweepExpired drops a non-scalar key whose Expire deadline has passed.
// Callers must hold c.mu.
func (c *Client) sweepExpired(key string) {
	deadline, ok := c.expiries[key]
	if !ok || time.Now().Before(deadline) {
		return
	}
	delete(c.expiries, key)
	delete(c.lists, key)
	delete(c.hashes, key)
	delete(c.zsets, key)
	delete(c.sets, key)
}

func (c *Client) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl <= 0 {
		delete(c.expiries, key)
		return nil
	}
	if e, ok := c.scalars[key]; ok {
		e.expiresAt = time.Now().Add(ttl)
		c.scalars[key] = e
		return nil
	}
	c.expiries[key] = time.Now().Add(ttl)
	return nil
}

func (c *Client) Keys(_ context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var out []string
	for k, e := range c.scalars {
		if !e.expired(now) && hasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range c.lists {
		if hasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range c.hashes {
		if hasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (c *Client) Ping(_ context.Context) error {
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func normalizeRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

