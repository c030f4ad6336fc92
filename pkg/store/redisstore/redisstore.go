/*
Copyright 2026 The Incident Core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package redisstore implements pkg/store.KeyValueStore over
// github.com/redis/go-redis/v9, the real substrate backing C1 in
// production. It is exercised in tests against miniredis rather than a live
// Redis server (see redisstore_test.go).
package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ai-autopilot/incident-core/pkg/store"
)

// Client adapts a *redis.Client to store.KeyValueStore.
type Client struct {
	rdb *goredis.Client
}

// New wraps an existing go-redis client. Callers own the client's lifecycle
// (Close is not called here).
func New(rdb *goredis.Client) *Client {
	return &Client{rdb: rdb}
}

var _ store.KeyValueStore = (*Client)(nil)

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return val, err
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

func (c *Client) SetEx(ctx context.Context, key string, ttl time.Duration, val []byte) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

func (c *Client) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *Client) LPush(ctx context.Context, key string, val []byte) error {
	return c.rdb.LPush(ctx, key, val).Err()
}

func (c *Client) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	vals, err := c.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (c *Client) LTrim(ctx context.Context, key string, start, stop int64) error {
	return c.rdb.LTrim(ctx, key, start, stop).Err()
}

func (c *Client) LRem(ctx context.Context, key string, count int64, val []byte) error {
	return c.rdb.LRem(ctx, key, count, val).Err()
}

func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	return c.rdb.LLen(ctx, key).Result()
}

func (c *Client) RPop(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.RPop(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return val, err
}

func (c *Client) HSet(ctx context.Context, key, field string, val []byte) error {
	return c.rdb.HSet(ctx, key, field, val).Err()
}

func (c *Client) HGet(ctx context.Context, key, field string) ([]byte, error) {
	val, err := c.rdb.HGet(ctx, key, field).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return val, err
}

func (c *Client) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	return c.rdb.HIncrBy(ctx, key, field, n).Result()
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	vals, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(vals))
	for k, v := range vals {
		out[k] = []byte(v)
	}
	return out, nil
}

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.rdb.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err()
}

func (c *Client) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return c.rdb.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min: strconv.FormatFloat(min, 'f', -1, 64),
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}).Result()
}

func (c *Client) ZRem(ctx context.Context, key string, member string) error {
	return c.rdb.ZRem(ctx, key, member).Err()
}

func (c *Client) SAdd(ctx context.Context, key string, member string) error {
	return c.rdb.SAdd(ctx, key, member).Err()
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.rdb.SMembers(ctx, key).Result()
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *Client) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
