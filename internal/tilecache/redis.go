package tilecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps tile bytes under "<prefix>tile:<key>" and access times
// in the sorted set "<prefix>lru" (score = unix microseconds).
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// OpenRedis connects and pings the server.
func OpenRedis(addr, password string, db int, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Redis connected", zap.String("addr", addr), zap.Int("db", db))
	return client, nil
}

func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (r *RedisStore) dataKey(key string) string { return r.prefix + "tile:" + key }
func (r *RedisStore) lruKey() string            { return r.prefix + "lru" }

func score(t time.Time) float64 { return float64(t.UnixMicro()) }

func (r *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	pipe := r.client.Pipeline()
	getCmd := pipe.Get(ctx, r.dataKey(key))
	scoreCmd := pipe.ZScore(ctx, r.lruKey(), key)
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Error("Failed to get tile from cache", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("cache get error: %w", err)
	}

	data, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get error: %w", err)
	}
	e := &Entry{Bytes: data}
	if s, err := scoreCmd.Result(); err == nil {
		e.LastAccessed = time.UnixMicro(int64(s))
	}
	return e, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, e Entry) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.dataKey(key), e.Bytes, 0)
		pipe.ZAdd(ctx, r.lruKey(), redis.Z{Score: score(e.LastAccessed), Member: key})
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to set tile cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (r *RedisStore) Touch(ctx context.Context, key string, at time.Time) (bool, error) {
	n, err := r.client.Exists(ctx, r.dataKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := r.client.ZAdd(ctx, r.lruKey(), redis.Z{Score: score(at), Member: key}).Err(); err != nil {
		return false, fmt.Errorf("cache touch error: %w", err)
	}
	return true, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.dataKey(key))
		pipe.ZRem(ctx, r.lruKey(), key)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to delete tile from cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.lruKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("cache count error: %w", err)
	}
	return int(n), nil
}

func (r *RedisStore) Oldest(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	keys, err := r.client.ZRange(ctx, r.lruKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache oldest error: %w", err)
	}
	return keys, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	keys, err := r.client.ZRange(ctx, r.lruKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("cache clear error: %w", err)
	}
	del := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		del = append(del, r.dataKey(k))
	}
	del = append(del, r.lruKey())
	if err := r.client.Del(ctx, del...).Err(); err != nil {
		return fmt.Errorf("cache clear error: %w", err)
	}
	r.logger.Debug("Tile cache cleared", zap.Int("entries", len(keys)))
	return nil
}
