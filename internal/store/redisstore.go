package store

import (
	"context"
	"errors"

	"github.com/SrJCBM/BDD-Avanzada/pkg/kv"
	"github.com/redis/go-redis/v9"
)

// scanCount is the COUNT hint passed to SCAN while listing keys.
const scanCount = 100

// RedisStore implements kv.Store on top of a single long-lived Redis client.
type RedisStore struct {
	rdb *redis.Client
}

var _ kv.Store = (*RedisStore)(nil)

// RedisOptions configures the connection to Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore creates a client for the given server. The connection is
// established lazily, so an unreachable server is reported by Ping or by the
// first operation rather than here.
func NewRedisStore(opts RedisOptions) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
	}
}

// Ping checks connectivity with the server.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// Keys walks the keyspace with SCAN instead of blocking the server with KEYS.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys := make([]string, 0)
	seen := make(map[string]struct{})
	iter := s.rdb.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		// SCAN may return a key more than once.
		k := iter.Val()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.rdb.SAdd(ctx, key, args...).Err()
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.rdb.SMembers(ctx, key).Result()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
