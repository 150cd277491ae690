package store

import (
	"context"
	"sync"

	"github.com/dailyyoga/vidcache/db"
	"github.com/dailyyoga/vidcache/logger"
)

// The process-wide store. Initialization is explicit: InitShared opens it
// once, later calls return the same instance, and CloseShared tears it down.
var (
	sharedMu    sync.Mutex
	sharedStore Store
)

// InitShared opens the process-wide store on first use and returns it
func InitShared(ctx context.Context, log logger.Logger, cfg *Config, dbCfg *db.Config) (Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedStore != nil {
		return sharedStore, nil
	}

	backend, err := NewBackend(ctx, log, cfg, dbCfg)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, log, cfg, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	sharedStore = s
	return s, nil
}

// Shared returns the process-wide store
func Shared() (Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedStore == nil {
		return nil, ErrNotInitialized
	}
	return sharedStore, nil
}

// CloseShared closes the process-wide store; InitShared may open it again afterwards
func CloseShared() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedStore == nil {
		return nil
	}
	err := sharedStore.Close()
	sharedStore = nil
	return err
}
