// Package refresh fetches the remote playlist and installs it in the cache,
// with at most one attempt in flight at a time.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/playlist"
	"github.com/dailyyoga/vidcache/remote"
	"github.com/dailyyoga/vidcache/routine"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const flightKey = "refresh"

// Writer installs a full replacement of the cache contents.
// store.Store satisfies it.
type Writer interface {
	ReplaceAll(ctx context.Context, items []playlist.Item) (playlist.Snapshot, error)
}

// Recorder receives every finished attempt. Record must not block.
type Recorder interface {
	Record(a Attempt)
}

// Pipeline runs refresh attempts
type Pipeline interface {
	// Refresh starts an attempt, or attaches to the one in flight, and
	// returns a handle that yields exactly one Result. It never blocks.
	Refresh(ctx context.Context) <-chan Result

	// RefreshNow is Refresh followed by waiting on the handle
	RefreshNow(ctx context.Context) error

	// Status reports the in-flight flag and the outcome of recent attempts
	Status() Status

	// Close abandons the in-flight attempt and rejects new ones
	Close() error
}

// Attempt describes one execution of the pipeline
type Attempt struct {
	ID         string
	Pipeline   string
	StartedAt  time.Time
	FinishedAt time.Time
	// Fetched is the number of remote entries, Items the number installed
	Fetched int
	Items   int
	// Version is the snapshot version committed by a successful attempt
	Version uint64
	Err     error
}

// Duration returns how long the attempt ran
func (a Attempt) Duration() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}

// Result is delivered on the handle returned by Refresh
type Result struct {
	Attempt Attempt
	// Shared reports that the attempt was delivered to more than one caller
	Shared bool
	Err    error
}

// Status is a point-in-time view of the pipeline
type Status struct {
	InFlight    bool
	Attempts    uint64
	Failures    uint64
	LastAttempt *Attempt
	LastSuccess time.Time
}

// Option configures a pipeline
type Option func(*pipeline)

// WithRecorder reports every finished attempt to r
func WithRecorder(r Recorder) Option {
	return func(p *pipeline) {
		p.recorder = r
	}
}

type pipeline struct {
	logger   logger.Logger
	source   remote.Source
	writer   Writer
	recorder Recorder

	name         string
	fetchTimeout time.Duration
	storeTimeout time.Duration

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu     sync.Mutex
	status Status
}

// New creates a refresh pipeline over source and writer
func New(log logger.Logger, cfg *Config, source remote.Source, writer Writer, opts ...Option) (Pipeline, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil || writer == nil {
		return nil, ErrNilDependency
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &pipeline{
		logger:       log,
		source:       source,
		writer:       writer,
		name:         cfg.Name,
		fetchTimeout: cfg.FetchTimeout,
		storeTimeout: cfg.StoreTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *pipeline) Refresh(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	if p.ctx.Err() != nil {
		out <- Result{Err: ErrClosed}
		close(out)
		return out
	}

	flight := p.group.DoChan(flightKey, p.run)
	routine.GoNamed(p.logger, p.name+"-refresh-waiter", func() {
		defer close(out)
		select {
		case r := <-flight:
			att, _ := r.Val.(Attempt)
			out <- Result{Attempt: att, Shared: r.Shared, Err: r.Err}
		case <-ctx.Done():
			out <- Result{Err: ErrDetached(ctx.Err())}
		}
	})
	return out
}

func (p *pipeline) RefreshNow(ctx context.Context) error {
	return (<-p.Refresh(ctx)).Err
}

func (p *pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.status
	if st.LastAttempt != nil {
		last := *st.LastAttempt
		st.LastAttempt = &last
	}
	return st
}

func (p *pipeline) Close() error {
	p.once.Do(func() {
		p.cancel()
		p.logger.Info("refresh pipeline closed", zap.String("pipeline", p.name))
	})
	return nil
}

// run executes one attempt on the pipeline context, so callers that give
// up do not cancel it for the others
func (p *pipeline) run() (any, error) {
	att := Attempt{
		ID:        uuid.NewString(),
		Pipeline:  p.name,
		StartedAt: time.Now(),
	}
	p.mu.Lock()
	p.status.InFlight = true
	p.mu.Unlock()

	err := p.execute(&att)

	att.FinishedAt = time.Now()
	att.Err = err
	p.finish(att)
	return att, err
}

func (p *pipeline) execute(att *Attempt) (err error) {
	defer func() { err = routine.Recover(p.logger, p.name+"-refresh", recover(), err) }()

	fetchCtx, cancel := context.WithTimeout(p.ctx, p.fetchTimeout)
	remoteItems, err := p.source.FetchPlaylist(fetchCtx)
	expired := fetchCtx.Err() == context.DeadlineExceeded
	cancel()
	if err != nil {
		if p.ctx.Err() != nil {
			return ErrClosed
		}
		if expired && playlist.KindOf(err) != playlist.KindTimeout {
			return playlist.NewFailure(playlist.KindTimeout, "refresh fetch", err)
		}
		return remote.Classify("refresh fetch", err)
	}
	att.Fetched = len(remoteItems)

	items := remote.ToItems(remoteItems)

	storeCtx, cancel := context.WithTimeout(p.ctx, p.storeTimeout)
	defer cancel()
	snap, err := p.writer.ReplaceAll(storeCtx, items)
	if err != nil {
		if playlist.KindOf(err) == playlist.KindUnknown {
			return playlist.NewFailure(playlist.KindStorageUnavailable, "refresh replace", err)
		}
		return err
	}
	att.Items = snap.Len()
	att.Version = snap.Version
	return nil
}

func (p *pipeline) finish(att Attempt) {
	p.mu.Lock()
	p.status.InFlight = false
	p.status.Attempts++
	if att.Err != nil {
		p.status.Failures++
	} else {
		p.status.LastSuccess = att.FinishedAt
	}
	last := att
	p.status.LastAttempt = &last
	p.mu.Unlock()

	if att.Err != nil {
		p.logger.Warn("refresh attempt failed",
			zap.String("pipeline", p.name),
			zap.String("attempt_id", att.ID),
			zap.Stringer("kind", playlist.KindOf(att.Err)),
			zap.Duration("duration", att.Duration()),
			zap.Error(att.Err),
		)
	} else {
		p.logger.Info("refresh attempt succeeded",
			zap.String("pipeline", p.name),
			zap.String("attempt_id", att.ID),
			zap.Int("fetched", att.Fetched),
			zap.Int("items", att.Items),
			zap.Uint64("version", att.Version),
			zap.Duration("duration", att.Duration()),
		)
	}

	if p.recorder != nil {
		p.recorder.Record(att)
	}
}
