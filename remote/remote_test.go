package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/playlist"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	return logger.NewNop()
}

const samplePlaylist = `{
  "videos": [
    {"id": "v1", "title": "Intro", "description": "first", "url": "https://example.com/v1",
     "thumbnail": "https://img.example.com/v1.jpg", "media_url": "https://cdn.example.com/v1.mp4",
     "updated": "2018-06-07T17:09:43+00:00", "closedCaptions": []},
    {"title": "No id", "url": "https://example.com/v2"},
    {"id": "v3", "title": "Third", "url": "https://example.com/v3"}
  ]
}`

// ============ Config Tests ============

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"valid", &Config{URL: "https://example.com/playlist.json", Timeout: time.Second}, false},
		{"empty url", &Config{Timeout: time.Second}, true},
		{"relative url", &Config{URL: "/playlist.json", Timeout: time.Second}, true},
		{"ftp url", &Config{URL: "ftp://example.com/x", Timeout: time.Second}, true},
		{"zero timeout", &Config{URL: "https://example.com"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_MergeDefaults(t *testing.T) {
	cfg := (&Config{URL: "https://example.com", UserAgent: "custom"}).MergeDefaults()
	if cfg.Timeout != 30*time.Second || cfg.UserAgent != "custom" || cfg.MaxBodyBytes != 10<<20 {
		t.Errorf("MergeDefaults failed: %+v", cfg)
	}
}

// ============ Transform Tests ============

func TestToItems(t *testing.T) {
	remote := []RemoteItem{
		{ID: "a", Title: "A", URL: "https://x/a", Thumbnail: "https://x/a.jpg", MediaURL: "https://x/a.mp4"},
		{URL: "https://x/b", Title: "B"},
		{Title: "dropped"},
		{ID: "a", Title: "duplicate"},
		{ID: "c", Title: "C"},
	}

	got := ToItems(remote)
	ids := make([]string, len(got))
	for i, it := range got {
		ids[i] = it.ID
	}
	if strings.Join(ids, ",") != "a,https://x/b,c" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	want := playlist.Item{ID: "a", Title: "A", URL: "https://x/a", ThumbnailURL: "https://x/a.jpg", MediaURL: "https://x/a.mp4"}
	if got[0] != want {
		t.Errorf("ToItems()[0] = %+v, want %+v", got[0], want)
	}
}

func TestToItems_Empty(t *testing.T) {
	if got := ToItems(nil); len(got) != 0 || got == nil {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestToItems_Deterministic(t *testing.T) {
	remote := []RemoteItem{{ID: "x"}, {ID: "y"}, {ID: "x"}}
	first := ToItems(remote)
	second := ToItems(remote)
	if len(first) != len(second) {
		t.Fatal("ToItems is not deterministic")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("ToItems differs at %d", i)
		}
	}
}

// ============ HTTP Source Tests ============

func newSource(t *testing.T, url string, timeout time.Duration) *HTTPSource {
	t.Helper()
	src, err := NewHTTPSource(testLogger(t), &Config{URL: url, Timeout: timeout})
	if err != nil {
		t.Fatalf("NewHTTPSource failed: %v", err)
	}
	return src
}

func TestHTTPSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing Accept header")
		}
		if r.Header.Get("User-Agent") != "vidcache/1.0" {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(samplePlaylist))
	}))
	defer srv.Close()

	videos, err := newSource(t, srv.URL, time.Second).FetchPlaylist(context.Background())
	if err != nil {
		t.Fatalf("FetchPlaylist failed: %v", err)
	}
	if len(videos) != 3 {
		t.Fatalf("expected 3 videos, got %d", len(videos))
	}
	if videos[0].MediaURL != "https://cdn.example.com/v1.mp4" || videos[0].Thumbnail != "https://img.example.com/v1.jpg" {
		t.Errorf("fields not decoded: %+v", videos[0])
	}
	if items := ToItems(videos); len(items) != 3 || items[1].ID != "https://example.com/v2" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestHTTPSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    playlist.FailureKind
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}, playlist.KindNetworkError},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}, playlist.KindNetworkError},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}, playlist.KindNetworkError},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}, playlist.KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newSource(t, srv.URL, 100*time.Millisecond).FetchPlaylist(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := playlist.KindOf(err); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v (err: %v)", got, tt.kind, err)
			}
		})
	}
}

func TestHTTPSource_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newSource(t, srv.URL, 10*time.Second).FetchPlaylist(ctx)
	if !errors.Is(err, playlist.ErrTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestHTTPSource_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newSource(t, url, time.Second).FetchPlaylist(context.Background())
	if !errors.Is(err, playlist.ErrNetwork) {
		t.Errorf("expected network error, got %v", err)
	}
}

func TestHTTPSource_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePlaylist))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(testLogger(t), &Config{URL: srv.URL, MaxBodyBytes: 16})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.FetchPlaylist(context.Background()); !errors.Is(err, playlist.ErrNetwork) {
		t.Errorf("expected network error, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	if Classify("op", nil) != nil {
		t.Error("nil must stay nil")
	}
	if got := playlist.KindOf(Classify("op", context.DeadlineExceeded)); got != playlist.KindTimeout {
		t.Errorf("deadline classified as %v", got)
	}
	if got := playlist.KindOf(Classify("op", errors.New("connection reset"))); got != playlist.KindNetworkError {
		t.Errorf("plain error classified as %v", got)
	}
	kept := playlist.NewFailure(playlist.KindStorageUnavailable, "x", nil)
	if Classify("op", kept) != error(kept) {
		t.Error("existing failure must pass through")
	}
}
