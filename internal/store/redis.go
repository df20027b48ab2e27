package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps a sorted set of store names (scored by creation time)
// and one hash per store mapping cache keys to JSON entries.
type RedisBackend struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisBackend wraps an existing client. namespace prefixes every key.
func NewRedisBackend(rdb *redis.Client, namespace string) *RedisBackend {
	if namespace == "" {
		namespace = "kidbuddy"
	}
	return &RedisBackend{rdb: rdb, namespace: namespace}
}

// OpenRedis connects to addr and checks the connection
func OpenRedis(ctx context.Context, addr, namespace string) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisBackend(rdb, namespace), nil
}

func (b *RedisBackend) storesKey() string {
	return b.namespace + ":stores"
}

func (b *RedisBackend) storeKey(name string) string {
	return b.namespace + ":store:" + name
}

func (b *RedisBackend) CreateStore(ctx context.Context, name string) error {
	err := b.rdb.ZAddNX(ctx, b.storesKey(), redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: name,
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd failed: %w", err)
	}
	return nil
}

func (b *RedisBackend) ListStores(ctx context.Context) ([]string, error) {
	names, err := b.rdb.ZRange(ctx, b.storesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	return names, nil
}

func (b *RedisBackend) DeleteStore(ctx context.Context, name string) error {
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.storeKey(name))
		pipe.ZRem(ctx, b.storesKey(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete store failed: %w", err)
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, storeName, key string) (*Entry, error) {
	raw, err := b.rdb.HGet(ctx, b.storeKey(storeName), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("hget failed: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &e, nil
}

func (b *RedisBackend) Set(ctx context.Context, storeName, key string, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, b.storesKey(), redis.Z{Score: float64(time.Now().UnixNano()), Member: storeName})
		pipe.HSet(ctx, b.storeKey(storeName), key, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("hset failed: %w", err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}
