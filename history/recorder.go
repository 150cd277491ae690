// Package history keeps an audit trail of refresh attempts in ClickHouse.
package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/playlist"
	"github.com/dailyyoga/vidcache/refresh"
	"github.com/smallnest/chanx"
	"go.uber.org/zap"
)

// Recorder buffers refresh attempts and writes them in batches.
// It satisfies refresh.Recorder.
type Recorder interface {
	// Record queues an attempt; it never blocks the caller
	Record(a refresh.Attempt)
	// Close flushes every queued attempt and closes the sink
	Close() error
}

// Row is the stored form of one attempt
type Row struct {
	AttemptID   string
	Pipeline    string
	StartedAt   time.Time
	FinishedAt  time.Time
	DurationMs  uint32
	Fetched     uint32
	Items       uint32
	Version     uint64
	Success     uint8
	FailureKind string
	Error       string
}

// RowFromAttempt converts an attempt to its stored form
func RowFromAttempt(a refresh.Attempt) Row {
	row := Row{
		AttemptID:  a.ID,
		Pipeline:   a.Pipeline,
		StartedAt:  a.StartedAt,
		FinishedAt: a.FinishedAt,
		DurationMs: uint32(a.Duration().Milliseconds()),
		Fetched:    uint32(a.Fetched),
		Items:      uint32(a.Items),
		Version:    a.Version,
		Success:    1,
	}
	if a.Err != nil {
		row.Success = 0
		row.FailureKind = playlist.KindOf(a.Err).String()
		row.Error = a.Err.Error()
	}
	return row
}

type defaultRecorder struct {
	logger logger.Logger
	sink   Sink
	table  string

	flushSize     int
	flushInterval time.Duration
	insertTimeout time.Duration

	dataChan *chanx.UnboundedChan[Row]
	cancel   context.CancelFunc

	mu     sync.RWMutex
	closed atomic.Bool
	wg     sync.WaitGroup
}

// New connects to ClickHouse and starts a recorder. A disabled config
// returns a recorder that discards everything.
func New(ctx context.Context, log logger.Logger, cfg *Config) (Recorder, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return NewNop(), nil
	}

	sink, err := NewClickHouseSink(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithSink(log, cfg, sink)
}

// NewWithSink starts a recorder that writes to sink
func NewWithSink(log logger.Logger, cfg *Config, sink Sink) (Recorder, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &defaultRecorder{
		logger:        log,
		sink:          sink,
		table:         cfg.Table,
		flushSize:     cfg.FlushSize,
		flushInterval: cfg.FlushInterval,
		insertTimeout: cfg.InsertTimeout,
		dataChan:      chanx.NewUnboundedChan[Row](ctx, cfg.FlushSize),
		cancel:        cancel,
	}

	r.wg.Add(1)
	go r.processLoop()

	log.Info("history recorder started",
		zap.String("table", cfg.Table),
		zap.Duration("flush_interval", cfg.FlushInterval),
		zap.Int("flush_size", cfg.FlushSize),
	)
	return r, nil
}

func (r *defaultRecorder) Record(a refresh.Attempt) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed.Load() {
		r.logger.Debug("attempt dropped", zap.String("attempt_id", a.ID), zap.Error(ErrRecorderClosed))
		return
	}

	select {
	case r.dataChan.In <- RowFromAttempt(a):
	default:
		r.logger.Error("attempt dropped",
			zap.String("attempt_id", a.ID),
			zap.Int("buffered", r.dataChan.Len()),
			zap.Error(ErrBufferFull),
		)
	}
}

func (r *defaultRecorder) Close() error {
	r.mu.Lock()
	if !r.closed.CompareAndSwap(false, true) {
		r.mu.Unlock()
		return nil
	}
	close(r.dataChan.In)
	r.mu.Unlock()

	r.wg.Wait()
	r.cancel()
	r.logger.Info("history recorder closed")
	return r.sink.Close()
}

// processLoop batches rows until the input is closed and drained
func (r *defaultRecorder) processLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	buffer := make([]Row, 0, r.flushSize)
	for {
		select {
		case row, ok := <-r.dataChan.Out:
			if !ok {
				r.flush(buffer)
				return
			}
			buffer = append(buffer, row)
			if len(buffer) >= r.flushSize {
				r.flush(buffer)
				buffer = make([]Row, 0, r.flushSize)
			}
		case <-ticker.C:
			if len(buffer) > 0 {
				r.flush(buffer)
				buffer = make([]Row, 0, r.flushSize)
			}
		}
	}
}

func (r *defaultRecorder) flush(rows []Row) {
	if len(rows) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.insertTimeout)
	defer cancel()

	if err := r.sink.Insert(ctx, rows); err != nil {
		r.logger.Error("failed to write refresh attempts",
			zap.String("table", r.table),
			zap.Int("rows", len(rows)),
			zap.Error(err),
		)
		return
	}
	r.logger.Debug("refresh attempts written", zap.String("table", r.table), zap.Int("rows", len(rows)))
}

type nopRecorder struct{}

// NewNop returns a recorder that discards every attempt
func NewNop() Recorder {
	return nopRecorder{}
}

func (nopRecorder) Record(refresh.Attempt) {}

func (nopRecorder) Close() error { return nil }
