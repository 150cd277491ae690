// Package store is the local cache of the video playlist.
//
// The store follows the same conventions as the rest of vidcache:
// - Interface-driven design for testability
// - Uses logger.Logger interface for unified logging
// - Configuration with validation and defaults
// - Structured error handling with playlist.Failure
//
// Reads never touch the backend: the current snapshot lives behind an atomic
// pointer that is swapped only after the backend committed a replacement, so
// a reader sees either the old or the new batch and never a mix. Writers are
// serialized, and every commit is fanned out to subscribers in commit order.
package store

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/playlist"
	"go.uber.org/zap"
)

// Backend is the durable side of the store
type Backend interface {
	// Load returns the persisted items in insertion order
	Load(ctx context.Context) ([]playlist.Item, error)
	// Replace discards the persisted items and stores items instead.
	// It must be all-or-nothing.
	Replace(ctx context.Context, items []playlist.Item) error
	Close() error
}

// Store is the cache of playlist items
type Store interface {
	// ReadAll returns the current snapshot without blocking on writers
	// An empty store yields an empty snapshot, never an error
	ReadAll() playlist.Snapshot

	// ReplaceAll atomically installs items as the new snapshot
	// On failure the previous snapshot stays in place and the returned
	// error is a playlist.Failure of kind StorageUnavailable
	ReplaceAll(ctx context.Context, items []playlist.Item) (playlist.Snapshot, error)

	// Subscribe returns a stream of snapshots, one per committed ReplaceAll
	Subscribe(opts ...SubscribeOption) Subscription

	// Close closes every subscription and the backend
	// It can be called multiple times safely
	Close() error
}

type defaultStore struct {
	logger  logger.Logger
	backend Backend
	name    string

	writeMu sync.Mutex
	current atomic.Pointer[playlist.Snapshot]
	subs    *broadcaster

	closed atomic.Bool
	once   sync.Once
	now    func() time.Time
}

// New opens a store over backend and loads the persisted snapshot
func New(ctx context.Context, log logger.Logger, cfg *Config, backend Backend) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, ErrInvalidConfig("backend is required")
	}

	items, err := backend.Load(ctx)
	if err != nil {
		return nil, ErrLoad(err)
	}

	s := &defaultStore{
		logger:  log,
		backend: backend,
		name:    cfg.Name,
		subs:    newBroadcaster(cfg.SubscriberBuffer),
		now:     time.Now,
	}
	s.current.Store(&playlist.Snapshot{Items: items})

	log.Info("cache store opened",
		zap.String("store", s.name),
		zap.String("backend", cfg.Backend),
		zap.Int("items", len(items)),
	)
	return s, nil
}

func (s *defaultStore) ReadAll() playlist.Snapshot {
	return *s.current.Load()
}

func (s *defaultStore) ReplaceAll(ctx context.Context, items []playlist.Item) (playlist.Snapshot, error) {
	batch := dedupByID(items)
	if dropped := len(items) - len(batch); dropped > 0 {
		s.logger.Warn("duplicate item ids collapsed",
			zap.String("store", s.name),
			zap.Int("dropped", dropped),
		)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return playlist.Snapshot{}, ErrReplace(ErrStoreClosed)
	}

	start := s.now()
	if err := s.backend.Replace(ctx, batch); err != nil {
		s.logger.Error("cache replace failed",
			zap.String("store", s.name),
			zap.Int("items", len(batch)),
			zap.Error(err),
		)
		return playlist.Snapshot{}, ErrReplace(err)
	}

	prev := s.current.Load()
	next := &playlist.Snapshot{
		Items:       batch,
		Version:     prev.Version + 1,
		CommittedAt: s.now(),
	}
	s.subs.commit(func() playlist.Snapshot {
		s.current.Store(next)
		return *next
	})

	s.logger.Debug("cache replaced",
		zap.String("store", s.name),
		zap.Uint64("version", next.Version),
		zap.Int("items", len(batch)),
		zap.Duration("elapsed", next.CommittedAt.Sub(start)),
	)
	return *next, nil
}

func (s *defaultStore) Subscribe(opts ...SubscribeOption) Subscription {
	o := subscribeOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	return s.subs.subscribe(o.replayCurrent, s.ReadAll)
}

func (s *defaultStore) Close() error {
	var err error
	s.once.Do(func() {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		s.closed.Store(true)
		s.subs.closeAll()
		err = s.backend.Close()
		s.logger.Info("cache store closed", zap.String("store", s.name))
	})
	return err
}

// dedupByID keeps the first occurrence of every identifier, preserving order.
// The input slice is never modified.
func dedupByID(items []playlist.Item) []playlist.Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]playlist.Item, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return slices.Clip(out)
}
