package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dailyyoga/vidcache/playlist"
)

func setupTestRedis(t *testing.T) (Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), testLogger(t), &RedisConfig{Addr: mr.Addr(), DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	return NewRedisBackend(client, "test:items"), mr
}

func TestRedisBackend_ReplaceAndLoad(t *testing.T) {
	backend, mr := setupTestRedis(t)
	defer backend.Close()
	ctx := context.Background()

	if err := backend.Replace(ctx, items("A", "B", "C")); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if err := backend.Replace(ctx, items("B", "C", "D")); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	loaded, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	ids := make([]string, len(loaded))
	for i, it := range loaded {
		ids[i] = it.ID
	}
	if got := strings.Join(ids, ","); got != "B,C,D" {
		t.Errorf("expected B,C,D, got %s", got)
	}
	if loaded[0].Title != "Title B" {
		t.Errorf("fields not round-tripped: %+v", loaded[0])
	}
	if got := mr.HGet("test:items:meta", "count"); got != "3" {
		t.Errorf("expected meta count 3, got %q", got)
	}
}

func TestRedisBackend_EmptyReplaceClears(t *testing.T) {
	backend, mr := setupTestRedis(t)
	defer backend.Close()
	ctx := context.Background()

	if err := backend.Replace(ctx, items("a")); err != nil {
		t.Fatal(err)
	}
	if err := backend.Replace(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("test:items") {
		t.Error("expected list key to be removed")
	}
	loaded, err := backend.Load(ctx)
	if err != nil || len(loaded) != 0 {
		t.Errorf("Load() = %v, %v", loaded, err)
	}
}

func TestRedisBackend_StoreOverRedis(t *testing.T) {
	backend, _ := setupTestRedis(t)
	s, err := New(context.Background(), testLogger(t), &Config{Backend: BackendMemory}, backend)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.ReplaceAll(context.Background(), items("a", "b")); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(s.ReadAll().IDs(), ","); got != "a,b" {
		t.Errorf("expected a,b, got %s", got)
	}
}

func TestRedisBackend_ServerDown(t *testing.T) {
	backend, mr := setupTestRedis(t)
	defer backend.Close()

	s, err := New(context.Background(), testLogger(t), &Config{Backend: BackendMemory}, backend)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReplaceAll(context.Background(), items("a")); err != nil {
		t.Fatal(err)
	}

	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = s.ReplaceAll(ctx, items("b"))
	if !errors.Is(err, playlist.ErrStorageUnavailable) {
		t.Fatalf("expected StorageUnavailable, got %v", err)
	}
	if got := strings.Join(s.ReadAll().IDs(), ","); got != "a" {
		t.Errorf("snapshot changed after failed replace: %s", got)
	}
}

func TestRedisBackend_CorruptEntry(t *testing.T) {
	backend, mr := setupTestRedis(t)
	defer backend.Close()

	if _, err := mr.Push("test:items", "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, err := backend.Load(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), testLogger(t), &RedisConfig{Addr: addr, DialTimeout: 200 * time.Millisecond})
	if !errors.Is(err, playlist.ErrStorageUnavailable) {
		t.Fatalf("expected StorageUnavailable, got %v", err)
	}
}
