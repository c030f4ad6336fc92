// Package store defines the KeyValueStore contract every component in the
// incident pipeline consumes. It is the only shared
// mutable substrate between components: patterns and
// learned stats are effectively single-writer, but everything crosses
// through here for reads.
package store

import (
	"context"
	"time"
)

// KeyValueStore is the collaborator interface the core consumes. Every
// method call is a potential suspension point and should honor ctx's
// deadline; implementations should default to a 5s deadline when the
// caller supplies none.
type KeyValueStore interface {
	// Scalar
	Get(ctx context.Context, key string) ([]byte, error) // nil, nil on miss
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	SetEx(ctx context.Context, key string, ttl time.Duration, val []byte) error
	Del(ctx context.Context, key string) error

	// Lists
	LPush(ctx context.Context, key string, val []byte) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRem(ctx context.Context, key string, count int64, val []byte) error
	LLen(ctx context.Context, key string) (int64, error)
	RPop(ctx context.Context, key string) ([]byte, error)

	// Hashes
	HSet(ctx context.Context, key, field string, val []byte) error
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)

	// Sorted sets
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	ZRem(ctx context.Context, key string, member string) error

	// Sets
	SAdd(ctx context.Context, key string, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// Expire attaches (or refreshes) a TTL on key, regardless of the
	// key's type. A missing key is not an error.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Discovery
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Ping reports whether the store is reachable, used by the fatal-error
	// escalation policy (C1 unavailable for > 30s forces
	// manual mode).
	Ping(ctx context.Context) error
}

// DefaultDeadline is applied by callers that don't have a more specific
// deadline of their own.
const DefaultDeadline = 5 * time.Second

// WithDefaultDeadline returns ctx unchanged if it already carries a
// deadline, otherwise attaches DefaultDeadline.
func WithDefaultDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultDeadline)
}

// LPushCapped pushes val onto key and trims the list to at most cap
// entries, implementing the "append then trim" pattern used by every capped
// ring buffer here (recent anomalies, incident indexes, decision
// logs, etc).
func LPushCapped(ctx context.Context, s KeyValueStore, key string, val []byte, cap int64) error {
	if err := s.LPush(ctx, key, val); err != nil {
		return err
	}
	if cap <= 0 {
		return nil
	}
	return s.LTrim(ctx, key, 0, cap-1)
}

// LPushCappedTTL is LPushCapped for ring buffers that additionally carry a
// retention window (recent anomalies, recent logs): every push refreshes
// the key's TTL so the list expires after ttl of inactivity.
func LPushCappedTTL(ctx context.Context, s KeyValueStore, key string, val []byte, cap int64, ttl time.Duration) error {
	if err := LPushCapped(ctx, s, key, val, cap); err != nil {
		return err
	}
	if ttl <= 0 {
		return nil
	}
	return s.Expire(ctx, key, ttl)
}
