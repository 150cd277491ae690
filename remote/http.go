package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dailyyoga/vidcache/logger"
	"go.uber.org/zap"
)

// HTTPSource fetches the playlist document from a single URL
type HTTPSource struct {
	cfg        *Config
	httpClient *http.Client
	logger     logger.Logger
}

// NewHTTPSource creates a new HTTP playlist source
func NewHTTPSource(log logger.Logger, cfg *Config) (*HTTPSource, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig("config is nil")
	}
	cfg = cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &HTTPSource{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log,
	}, nil
}

// FetchPlaylist performs one GET against the configured URL. It does not retry.
func (s *HTTPSource) FetchPlaylist(ctx context.Context) ([]RemoteItem, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn("playlist request failed", zap.String("url", s.cfg.URL), zap.Error(err))
		return nil, Classify("fetch playlist", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, Classify("fetch playlist", err)
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		return nil, Classify("fetch playlist", ErrBodyTooLarge(s.cfg.MaxBodyBytes))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("playlist request error",
			zap.String("url", s.cfg.URL),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 256)),
		)
		return nil, Classify("fetch playlist", ErrUnexpectedStatus(resp.StatusCode))
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, Classify("fetch playlist", ErrDecode(err))
	}

	s.logger.Debug("playlist fetched",
		zap.String("url", s.cfg.URL),
		zap.Int("videos", len(doc.Videos)),
		zap.Duration("duration", time.Since(start)),
	)
	return doc.Videos, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
