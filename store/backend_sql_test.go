package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dailyyoga/vidcache/db"
	"github.com/dailyyoga/vidcache/playlist"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T, path string) db.Database {
	t.Helper()
	database, err := db.New(testLogger(t), &db.Config{Driver: db.DriverSQLite, Path: path, LogLevel: "silent"})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return database
}

func newSQLStore(t *testing.T, path string, batchSize int) (Store, db.Database) {
	t.Helper()
	ctx := context.Background()
	database := openSQLite(t, path)
	cfg := &Config{Backend: BackendSQL, BatchSize: batchSize}
	backend, err := NewSQLBackend(ctx, database, cfg)
	if err != nil {
		t.Fatalf("NewSQLBackend failed: %v", err)
	}
	s, err := New(ctx, testLogger(t), cfg, backend)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, database
}

func TestSQLBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, _ := newSQLStore(t, path, 2)
	if _, err := s.ReplaceAll(ctx, items("c", "a", "b", "e", "d")); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, _ := newSQLStore(t, path, 2)
	defer reopened.Close()

	snap := reopened.ReadAll()
	if got := strings.Join(snap.IDs(), ","); got != "c,a,b,e,d" {
		t.Errorf("expected insertion order c,a,b,e,d, got %s", got)
	}
	if snap.Items[0].URL != "https://example.com/c" || snap.Items[0].Title != "Title c" {
		t.Errorf("item fields not persisted: %+v", snap.Items[0])
	}
	if snap.Version != 0 {
		t.Errorf("loaded snapshot should have version 0, got %d", snap.Version)
	}
}

func TestSQLBackend_FullReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, database := newSQLStore(t, path, 100)
	defer s.Close()

	if _, err := s.ReplaceAll(ctx, items("A", "B", "C")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReplaceAll(ctx, items("B", "C", "D")); err != nil {
		t.Fatal(err)
	}

	gdb, _ := database.DB()
	var count int64
	if err := gdb.Table("cached_items").Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected 3 rows, got %d", count)
	}
	var ids []string
	if err := gdb.Table("cached_items").Order("position").Pluck("id", &ids).Error; err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(ids, ","); got != "B,C,D" {
		t.Errorf("expected B,C,D rows, got %s", got)
	}
}

func TestSQLBackend_PartialBatchFailureRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, database := newSQLStore(t, path, 1)
	defer s.Close()

	if _, err := s.ReplaceAll(ctx, items("a", "b", "c")); err != nil {
		t.Fatal(err)
	}

	// fail the second INSERT of the next replacement
	gdb, _ := database.DB()
	var creates atomic.Int32
	var armed atomic.Bool
	err := gdb.Callback().Create().Before("gorm:create").Register("test:fail_second_batch", func(tx *gorm.DB) {
		if armed.Load() && creates.Add(1) == 2 {
			_ = tx.AddError(errors.New("disk I/O error"))
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	armed.Store(true)

	_, err = s.ReplaceAll(ctx, items("x", "y", "z"))
	if !errors.Is(err, playlist.ErrStorageUnavailable) {
		t.Fatalf("expected StorageUnavailable, got %v", err)
	}
	armed.Store(false)

	if got := strings.Join(s.ReadAll().IDs(), ","); got != "a,b,c" {
		t.Errorf("in-memory snapshot changed: %s", got)
	}

	loaded, err := (&sqlBackend{gdb: gdb, table: "cached_items", batchSize: 1}).Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(loaded))
	for i, it := range loaded {
		ids[i] = it.ID
	}
	if got := strings.Join(ids, ","); got != "a,b,c" {
		t.Errorf("persisted rows changed after rollback: %s", got)
	}
}

func TestNewBackend_SQLite(t *testing.T) {
	ctx := context.Background()
	backend, err := NewBackend(ctx, testLogger(t), &Config{Backend: BackendSQL},
		&db.Config{Driver: db.DriverSQLite, Path: filepath.Join(t.TempDir(), "cache.db")})
	if err != nil {
		t.Fatalf("NewBackend failed: %v", err)
	}
	defer backend.Close()

	if err := backend.Replace(ctx, items("a")); err != nil {
		t.Fatal(err)
	}
	loaded, err := backend.Load(ctx)
	if err != nil || len(loaded) != 1 || loaded[0].ID != "a" {
		t.Errorf("Load() = %v, %v", loaded, err)
	}
}
