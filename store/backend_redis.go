package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/playlist"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisBackend struct {
	client redis.UniversalClient
	key    string
}

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(ctx context.Context, log logger.Logger, cfg *RedisConfig) (redis.UniversalClient, error) {
	cfg = cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(cfg.Options())
	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, ErrLoad(err)
	}

	log.Info("redis connection established",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("key", cfg.Key),
	)
	return client, nil
}

// NewRedisBackend stores the snapshot as a list of JSON items under key.
// The backend owns client and closes it on Close.
func NewRedisBackend(client redis.UniversalClient, key string) Backend {
	return &redisBackend{client: client, key: key}
}

func (b *redisBackend) Load(ctx context.Context) ([]playlist.Item, error) {
	values, err := b.client.LRange(ctx, b.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	items := make([]playlist.Item, len(values))
	for i, v := range values {
		if err := json.Unmarshal([]byte(v), &items[i]); err != nil {
			return nil, ErrDecode(i, err)
		}
	}
	return items, nil
}

// Replace swaps the list inside MULTI/EXEC, so other clients observe the old
// or the new list but never a partial one.
func (b *redisBackend) Replace(ctx context.Context, items []playlist.Item) error {
	values := make([]any, len(items))
	for i, it := range items {
		data, err := json.Marshal(it)
		if err != nil {
			return err
		}
		values[i] = data
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.key)
		if len(values) > 0 {
			pipe.RPush(ctx, b.key, values...)
		}
		pipe.HSet(ctx, b.key+":meta", "committed_at", time.Now().UTC().Format(time.RFC3339Nano), "count", len(values))
		return nil
	})
	return err
}

func (b *redisBackend) Close() error {
	return b.client.Close()
}
