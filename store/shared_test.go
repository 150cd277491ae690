package store

import (
	"context"
	"errors"
	"testing"
)

func TestShared_Lifecycle(t *testing.T) {
	t.Cleanup(func() { _ = CloseShared() })

	if _, err := Shared(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	ctx := context.Background()
	cfg := &Config{Backend: BackendMemory}
	first, err := InitShared(ctx, testLogger(t), cfg, nil)
	if err != nil {
		t.Fatalf("InitShared failed: %v", err)
	}
	second, err := InitShared(ctx, testLogger(t), cfg, nil)
	if err != nil {
		t.Fatalf("second InitShared failed: %v", err)
	}
	if first != second {
		t.Error("InitShared must return the same instance")
	}

	got, err := Shared()
	if err != nil || got != first {
		t.Fatalf("Shared() = %v, %v", got, err)
	}

	if err := CloseShared(); err != nil {
		t.Fatal(err)
	}
	if _, err := Shared(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized after close, got %v", err)
	}
}
