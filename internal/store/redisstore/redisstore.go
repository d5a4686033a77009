// Package redisstore implements the ledger's key-value contract on a
// Redis-compatible server via go-redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/remixcast/creditledger/pkg/credits"
)

const (
	errorOperationStore = "store"
	errorSubjectRedis   = "redis"
)

// Store implements credits.Store using a redis client.
type Store struct {
	client *redis.Client
}

var _ credits.Store = (*Store)(nil)

// New returns a Store backed by the given client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Open connects to the store from a redis URL and verifies the connection.
func Open(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (store *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := store.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapRedisError("get", err)
	}
	return value, true, nil
}

func (store *Store) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := store.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrapRedisError("set", err)
	}
	return nil
}

func (store *Store) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	won, err := store.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrapRedisError("setnx", err)
	}
	return won, nil
}

func (store *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	updated, err := store.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, wrapRedisError("incrby", err)
	}
	return updated, nil
}

func (store *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := store.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrapRedisError("hgetall", err)
	}
	return fields, nil
}

func (store *Store) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := store.client.HSet(ctx, key, fields).Err(); err != nil {
		return wrapRedisError("hset", err)
	}
	return nil
}

func (store *Store) SetAdd(ctx context.Context, key string, member string) (bool, error) {
	added, err := store.client.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, wrapRedisError("sadd", err)
	}
	return added > 0, nil
}

func (store *Store) SetIsMember(ctx context.Context, key string, member string) (bool, error) {
	isMember, err := store.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, wrapRedisError("sismember", err)
	}
	return isMember, nil
}

func (store *Store) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	if err := store.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return wrapRedisError("zadd", err)
	}
	return nil
}

func (store *Store) SortedSetRangeByScore(ctx context.Context, key string, min, max float64, limit int) ([]string, error) {
	rangeBy := &redis.ZRangeBy{
		Min:   formatScore(min),
		Max:   formatScore(max),
		Count: int64(limit),
	}
	members, err := store.client.ZRangeByScore(ctx, key, rangeBy).Result()
	if err != nil {
		return nil, wrapRedisError("zrangebyscore", err)
	}
	return members, nil
}

func (store *Store) ListPush(ctx context.Context, key string, value string) error {
	if err := store.client.RPush(ctx, key, value).Err(); err != nil {
		return wrapRedisError("rpush", err)
	}
	return nil
}

func (store *Store) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	values, err := store.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrapRedisError("lrange", err)
	}
	return values, nil
}

func (store *Store) ListTrim(ctx context.Context, key string, start, stop int64) error {
	if err := store.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		return wrapRedisError("ltrim", err)
	}
	return nil
}

func (store *Store) ListDelete(ctx context.Context, key string) error {
	if err := store.client.Del(ctx, key).Err(); err != nil {
		return wrapRedisError("del", err)
	}
	return nil
}

func formatScore(score float64) string {
	switch {
	case math.IsInf(score, 1):
		return "+inf"
	case math.IsInf(score, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(score, 'f', -1, 64)
	}
}

// wrapRedisError tags every transport failure as a store-unavailable
// condition with the failing command as its code.
func wrapRedisError(command string, err error) error {
	return credits.WrapError(errorOperationStore, errorSubjectRedis, command, fmt.Errorf("%w: %v", credits.ErrStoreUnavailable, err))
}
