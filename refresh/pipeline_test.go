package refresh

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/playlist"
	"github.com/dailyyoga/vidcache/remote"
	"github.com/dailyyoga/vidcache/store"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, _ := logger.New(&logger.Config{Level: "debug", Encoding: "console"})
	return log
}

// blockingSource answers with videos once release is closed
type blockingSource struct {
	videos  []remote.RemoteItem
	err     error
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newBlockingSource(ids ...string) *blockingSource {
	return &blockingSource{
		videos:  videos(ids...),
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (s *blockingSource) FetchPlaylist(ctx context.Context) ([]remote.RemoteItem, error) {
	s.calls.Add(1)
	s.started <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.videos, s.err
}

func staticSource(ids ...string) remote.Source {
	v := videos(ids...)
	return remote.SourceFunc(func(ctx context.Context) ([]remote.RemoteItem, error) {
		return v, nil
	})
}

func failingSource(err error) remote.Source {
	return remote.SourceFunc(func(ctx context.Context) ([]remote.RemoteItem, error) {
		return nil, err
	})
}

func videos(ids ...string) []remote.RemoteItem {
	out := make([]remote.RemoteItem, len(ids))
	for i, id := range ids {
		out[i] = remote.RemoteItem{ID: id, Title: "Title " + id, URL: "https://example.com/" + id}
	}
	return out
}

// toggleBackend is an in-memory store backend whose writes can be made to fail
type toggleBackend struct {
	store.Backend
	fail     atomic.Bool
	replaces atomic.Int32
}

func (b *toggleBackend) Replace(ctx context.Context, items []playlist.Item) error {
	b.replaces.Add(1)
	if b.fail.Load() {
		return errors.New("database or disk is full")
	}
	return b.Backend.Replace(ctx, items)
}

func newTestStore(t *testing.T) (store.Store, *toggleBackend) {
	t.Helper()
	backend := &toggleBackend{Backend: store.NewMemoryBackend()}
	s, err := store.New(context.Background(), testLogger(t), &store.Config{Backend: store.BackendMemory}, backend)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, backend
}

func newTestPipeline(t *testing.T, cfg *Config, src remote.Source, w Writer, opts ...Option) Pipeline {
	t.Helper()
	p, err := New(testLogger(t), cfg, src, w, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func ids(s store.Store) string {
	return strings.Join(s.ReadAll().IDs(), ",")
}

type memRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (r *memRecorder) Record(a Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *memRecorder) all() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Attempt(nil), r.attempts...)
}

// ============ Config Tests ============

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"valid", &Config{FetchTimeout: time.Second, StoreTimeout: time.Second}, false},
		{"negative fetch timeout", &Config{FetchTimeout: -1, StoreTimeout: time.Second}, true},
		{"zero store timeout", &Config{FetchTimeout: time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := New(testLogger(t), nil, nil, s); !errors.Is(err, ErrNilDependency) {
		t.Errorf("expected ErrNilDependency, got %v", err)
	}
	if _, err := New(testLogger(t), nil, staticSource(), nil); !errors.Is(err, ErrNilDependency) {
		t.Errorf("expected ErrNilDependency, got %v", err)
	}
}

// ============ Pipeline Tests ============

func TestRefreshNow_Success(t *testing.T) {
	s, backend := newTestStore(t)
	sub := s.Subscribe()
	defer sub.Close()

	p := newTestPipeline(t, nil, staticSource("a", "b", "c"), s)
	if err := p.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}

	if got := ids(s); got != "a,b,c" {
		t.Errorf("expected a,b,c, got %s", got)
	}
	if backend.replaces.Load() != 1 {
		t.Errorf("expected exactly one replace, got %d", backend.replaces.Load())
	}
	select {
	case snap := <-sub.C():
		if snap.Version != 1 || snap.Len() != 3 {
			t.Errorf("unexpected snapshot %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber was not notified")
	}
}

func TestRefresh_SingleFlight(t *testing.T) {
	s, backend := newTestStore(t)
	src := newBlockingSource("a", "b")
	p := newTestPipeline(t, nil, src, s)

	ctx := context.Background()
	handles := []<-chan Result{p.Refresh(ctx)}
	<-src.started
	for i := 0; i < 4; i++ {
		handles = append(handles, p.Refresh(ctx))
	}
	if !p.Status().InFlight {
		t.Error("expected an attempt in flight")
	}
	close(src.release)

	var attemptID string
	for i, h := range handles {
		select {
		case r := <-h:
			if r.Err != nil {
				t.Fatalf("caller %d got error: %v", i, r.Err)
			}
			if attemptID == "" {
				attemptID = r.Attempt.ID
			} else if r.Attempt.ID != attemptID {
				t.Errorf("caller %d attached to attempt %s, want %s", i, r.Attempt.ID, attemptID)
			}
			if !r.Shared {
				t.Errorf("caller %d: expected shared result", i)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("caller %d never received a result", i)
		}
	}

	if got := src.calls.Load(); got != 1 {
		t.Errorf("expected one remote call, got %d", got)
	}
	if got := backend.replaces.Load(); got != 1 {
		t.Errorf("expected one replace, got %d", got)
	}
}

func TestRefresh_NewAttemptAfterCompletion(t *testing.T) {
	s, _ := newTestStore(t)
	var calls atomic.Int32
	src := remote.SourceFunc(func(ctx context.Context) ([]remote.RemoteItem, error) {
		calls.Add(1)
		return videos("a"), nil
	})
	p := newTestPipeline(t, nil, src, s)

	first := <-p.Refresh(context.Background())
	second := <-p.Refresh(context.Background())
	if first.Err != nil || second.Err != nil {
		t.Fatalf("unexpected errors: %v, %v", first.Err, second.Err)
	}
	if first.Attempt.ID == second.Attempt.ID {
		t.Error("sequential refreshes must be distinct attempts")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 remote calls, got %d", calls.Load())
	}
}

func TestRefreshNow_NetworkFailureLeavesCache(t *testing.T) {
	s, backend := newTestStore(t)
	if _, err := s.ReplaceAll(context.Background(), remote.ToItems(videos("a", "b"))); err != nil {
		t.Fatal(err)
	}
	before := s.ReadAll()

	p := newTestPipeline(t, nil, failingSource(errors.New("connection refused")), s)
	err := p.RefreshNow(context.Background())
	if !errors.Is(err, playlist.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}

	after := s.ReadAll()
	if after.Version != before.Version || !after.SameItems(before) {
		t.Error("cache changed after failed fetch")
	}
	if backend.replaces.Load() != 1 {
		t.Errorf("failed attempt must not write, replaces = %d", backend.replaces.Load())
	}
}

func TestRefreshNow_Timeout(t *testing.T) {
	s, backend := newTestStore(t)
	src := newBlockingSource("a")
	defer close(src.release)

	p := newTestPipeline(t, &Config{FetchTimeout: 50 * time.Millisecond}, src, s)
	start := time.Now()
	err := p.RefreshNow(context.Background())
	if !errors.Is(err, playlist.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not enforced")
	}
	if s.ReadAll().Len() != 0 || backend.replaces.Load() != 0 {
		t.Error("cache touched after timeout")
	}
}

func TestRefreshNow_StorageFailure(t *testing.T) {
	s, backend := newTestStore(t)
	p := newTestPipeline(t, nil, staticSource("a", "b"), s)
	if err := p.RefreshNow(context.Background()); err != nil {
		t.Fatal(err)
	}

	backend.fail.Store(true)
	p2 := newTestPipeline(t, nil, staticSource("x", "y", "z"), s)
	err := p2.RefreshNow(context.Background())
	if !errors.Is(err, playlist.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if got := ids(s); got != "a,b" {
		t.Errorf("previous snapshot lost: %s", got)
	}

	backend.fail.Store(false)
	if err := p2.RefreshNow(context.Background()); err != nil {
		t.Fatalf("retry after storage recovery failed: %v", err)
	}
	if got := ids(s); got != "x,y,z" {
		t.Errorf("expected x,y,z after retry, got %s", got)
	}
}

func TestRefreshNow_WriterErrorIsStorageUnavailable(t *testing.T) {
	w := writerFunc(func(ctx context.Context, items []playlist.Item) (playlist.Snapshot, error) {
		return playlist.Snapshot{}, errors.New("read-only file system")
	})
	p := newTestPipeline(t, nil, staticSource("a"), w)
	if err := p.RefreshNow(context.Background()); playlist.KindOf(err) != playlist.KindStorageUnavailable {
		t.Errorf("expected storage unavailable, got %v", err)
	}
}

type writerFunc func(ctx context.Context, items []playlist.Item) (playlist.Snapshot, error)

func (f writerFunc) ReplaceAll(ctx context.Context, items []playlist.Item) (playlist.Snapshot, error) {
	return f(ctx, items)
}

func TestRefreshNow_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	p := newTestPipeline(t, nil, staticSource("a", "b"), s)

	if err := p.RefreshNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := s.ReadAll()
	if err := p.RefreshNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := s.ReadAll()

	if !first.SameItems(second) {
		t.Error("identical remote data produced different snapshots")
	}
	if second.Version != first.Version+1 {
		t.Errorf("expected version %d, got %d", first.Version+1, second.Version)
	}
}

func TestRefresh_CallerCancelDetachesOnlyThatCaller(t *testing.T) {
	s, _ := newTestStore(t)
	src := newBlockingSource("a")
	p := newTestPipeline(t, nil, src, s)

	impatient, cancel := context.WithCancel(context.Background())
	h1 := p.Refresh(impatient)
	<-src.started
	h2 := p.Refresh(context.Background())

	cancel()
	r1 := <-h1
	if !errors.Is(r1.Err, context.Canceled) {
		t.Fatalf("expected detached caller to see context.Canceled, got %v", r1.Err)
	}

	close(src.release)
	select {
	case r2 := <-h2:
		if r2.Err != nil {
			t.Fatalf("remaining caller failed: %v", r2.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remaining caller never received a result")
	}
	if got := ids(s); got != "a" {
		t.Errorf("attempt did not complete: %q", got)
	}
}

func TestRefresh_AfterClose(t *testing.T) {
	s, _ := newTestStore(t)
	p := newTestPipeline(t, nil, staticSource("a"), s)
	_ = p.Close()
	_ = p.Close()

	if err := p.RefreshNow(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestClose_AbandonsInFlightAttempt(t *testing.T) {
	s, backend := newTestStore(t)
	src := newBlockingSource("a")
	defer close(src.release)
	p := newTestPipeline(t, nil, src, s)

	h := p.Refresh(context.Background())
	<-src.started
	_ = p.Close()

	select {
	case r := <-h:
		if !errors.Is(r.Err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", r.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight attempt was not abandoned")
	}
	if backend.replaces.Load() != 0 {
		t.Error("abandoned attempt wrote to the cache")
	}
}

func TestRefreshNow_SourcePanic(t *testing.T) {
	s, _ := newTestStore(t)
	src := remote.SourceFunc(func(ctx context.Context) ([]remote.RemoteItem, error) {
		panic("decoder exploded")
	})
	p := newTestPipeline(t, nil, src, s)

	if err := p.RefreshNow(context.Background()); err == nil {
		t.Fatal("expected error from panicking source")
	}
	if err := p.RefreshNow(context.Background()); err == nil {
		t.Fatal("pipeline must stay usable after a panic")
	}
}

func TestStatusAndRecorder(t *testing.T) {
	s, _ := newTestStore(t)
	var fail atomic.Bool
	src := remote.SourceFunc(func(ctx context.Context) ([]remote.RemoteItem, error) {
		if fail.Load() {
			return nil, errors.New("no route to host")
		}
		return videos("a", "a", "b"), nil
	})
	rec := &memRecorder{}
	p := newTestPipeline(t, &Config{Name: "test"}, src, s, WithRecorder(rec))

	if err := p.RefreshNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	fail.Store(true)
	_ = p.RefreshNow(context.Background())

	st := p.Status()
	if st.InFlight || st.Attempts != 2 || st.Failures != 1 {
		t.Errorf("unexpected status %+v", st)
	}
	if st.LastSuccess.IsZero() || st.LastAttempt == nil || st.LastAttempt.Err == nil {
		t.Errorf("unexpected last attempt in %+v", st)
	}

	attempts := rec.all()
	if len(attempts) != 2 {
		t.Fatalf("expected 2 recorded attempts, got %d", len(attempts))
	}
	ok := attempts[0]
	if ok.Pipeline != "test" || ok.Fetched != 3 || ok.Items != 2 || ok.Version != 1 || ok.Err != nil {
		t.Errorf("unexpected successful attempt %+v", ok)
	}
	if ok.ID == "" || ok.Duration() < 0 {
		t.Errorf("attempt metadata missing: %+v", ok)
	}
	if playlist.KindOf(attempts[1].Err) != playlist.KindNetworkError {
		t.Errorf("expected network error, got %v", attempts[1].Err)
	}
}
