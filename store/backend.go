package store

import (
	"context"
	"slices"
	"sync"

	"github.com/dailyyoga/vidcache/db"
	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/playlist"
)

// NewBackend builds the backend selected by cfg.Backend.
// dbCfg is only used by the sql backend.
func NewBackend(ctx context.Context, log logger.Logger, cfg *Config, dbCfg *db.Config) (Backend, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendRedis:
		client, err := NewRedisClient(ctx, log, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisBackend(client, cfg.Redis.Key), nil
	case BackendMemory:
		return NewMemoryBackend(), nil
	default:
		database, err := db.New(log, dbCfg)
		if err != nil {
			return nil, ErrLoad(err)
		}
		backend, err := NewSQLBackend(ctx, database, cfg)
		if err != nil {
			_ = database.Close()
			return nil, err
		}
		return backend, nil
	}
}

type memoryBackend struct {
	mu    sync.Mutex
	items []playlist.Item
}

// NewMemoryBackend returns a backend that keeps nothing across restarts
func NewMemoryBackend() Backend {
	return &memoryBackend{}
}

func (b *memoryBackend) Load(ctx context.Context) ([]playlist.Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.items), nil
}

func (b *memoryBackend) Replace(ctx context.Context, items []playlist.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = slices.Clone(items)
	return nil
}

func (b *memoryBackend) Close() error {
	return nil
}
