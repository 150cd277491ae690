// Package schedule triggers refreshes on named periodic series.
//
// Every series shares one robfig/cron instance for its timer. When a timer
// fires, the series waits for its constraints, runs the refresh through the
// task middleware chain and, on failure, retries with exponential backoff
// until the retry budget of the period is spent.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/routine"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher runs one refresh and waits for its outcome.
// refresh.Pipeline satisfies it.
type Refresher interface {
	RefreshNow(ctx context.Context) error
}

// State is the lifecycle position of a series
type State int32

const (
	Idle State = iota
	ConstraintsPending
	Running
	Backoff
)

func (s State) String() string {
	switch s {
	case ConstraintsPending:
		return "constraints_pending"
	case Running:
		return "running"
	case Backoff:
		return "backoff"
	default:
		return "idle"
	}
}

// SeriesInfo describes a registered series
type SeriesInfo struct {
	Name        string
	Period      time.Duration
	Constraints Constraints
	State       State
	NextRun     time.Time
	LastRun     time.Time
	LastError   string
	Failures    int
}

// Scheduler manages named periodic refresh series
type Scheduler interface {
	// Start starts the timers; series registered earlier begin counting down
	Start()
	// Close stops every series and the timers, then closes the state store.
	// Refreshes already in flight are not cancelled.
	Close() error
	// Schedule registers a series. A name that is already registered is
	// resolved by policy: Keep leaves the running series alone and returns
	// ErrScheduleConflict if the new definition differs, Replace installs
	// the new definition in its place.
	Schedule(name string, period time.Duration, c Constraints, policy Policy) error
	// Cancel removes a series and its persisted state
	Cancel(name string) bool
	// State returns the current state of a series
	State(name string) (State, bool)
	// Series lists the registered series ordered by name
	Series() []SeriesInfo
}

// Option configures a scheduler
type Option func(*scheduler)

// WithChecker gates runs on c instead of AlwaysSatisfied
func WithChecker(c ConstraintChecker) Option {
	return func(s *scheduler) {
		s.checker = c
	}
}

// WithStateStore persists series state in st. The scheduler closes st on Close.
func WithStateStore(st StateStore) Option {
	return func(s *scheduler) {
		s.state = st
	}
}

// WithMiddleware appends middlewares after the built-in recovery and logging
func WithMiddleware(mws ...Middleware) Option {
	return func(s *scheduler) {
		s.middlewares = append(s.middlewares, mws...)
	}
}

type series struct {
	name        string
	period      time.Duration
	constraints Constraints
	task        Task

	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	trigger chan struct{}
	state   atomic.Int32

	mu  sync.Mutex
	rec Record
}

func (sr *series) setState(st State) State {
	return State(sr.state.Swap(int32(st)))
}

func (sr *series) record() Record {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.rec
}

func (sr *series) update(fn func(r *Record)) Record {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	fn(&sr.rec)
	return sr.rec
}

type scheduler struct {
	logger      logger.Logger
	cfg         *Config
	refresher   Refresher
	checker     ConstraintChecker
	state       StateStore
	middlewares []Middleware

	cron   *cron.Cron
	runner routine.Runner

	mu      sync.Mutex
	series  map[string]*series
	started bool
	closed  bool
	once    sync.Once
}

// New creates a scheduler that triggers refresher
func New(log logger.Logger, cfg *Config, refresher Refresher, opts ...Option) (Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg = cfg.MergeDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if refresher == nil {
		return nil, ErrNilRefresher
	}

	s := &scheduler{
		logger:    log,
		cfg:       cfg,
		refresher: refresher,
		checker:   AlwaysSatisfied,
		series:    make(map[string]*series),
		runner:    routine.New(log),
	}
	s.middlewares = []Middleware{
		recoveryMiddleware(log),
		loggingMiddleware(log),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.state == nil {
		if cfg.StatePath != "" {
			st, err := NewBoltStateStore(cfg.StatePath)
			if err != nil {
				return nil, err
			}
			s.state = st
		} else {
			s.state = NewMemoryStateStore()
		}
	}

	cl := cronLogger{log: log}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))
	return s, nil
}

func (s *scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("series", len(s.series)))
}

func (s *scheduler) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		for _, sr := range s.series {
			sr.cancel()
		}
		s.mu.Unlock()

		<-s.cron.Stop().Done()
		s.runner.Wait()
		err = s.state.Close()
		s.logger.Info("scheduler closed")
	})
	return err
}

func (s *scheduler) Schedule(name string, period time.Duration, c Constraints, policy Policy) error {
	if err := (SeriesConfig{Name: name, Period: period, Policy: policy.String()}).Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var prev Record
	if existing, ok := s.series[name]; ok {
		same := existing.period == period && existing.constraints == c
		if policy == Keep {
			if same {
				s.logger.Debug("schedule kept", zap.String("schedule", name))
				return nil
			}
			s.logger.Warn("schedule conflict, keeping existing series",
				zap.String("schedule", name),
				zap.Duration("existing_period", existing.period),
				zap.Duration("period", period),
			)
			return ErrConflict(name)
		}

		prev = existing.record()
		s.stopSeries(existing)
		s.logger.Info("schedule replaced", zap.String("schedule", name))
	} else {
		rec, found, err := s.state.Load(name)
		if err != nil {
			s.logger.Warn("failed to load schedule state", zap.String("schedule", name), zap.Error(err))
		} else if found {
			prev = rec
		}
	}

	first := time.Now().Add(period)
	if prev.Period == period && !prev.NextRun.IsZero() {
		first = prev.NextRun
	}

	ctx, cancel := context.WithCancel(context.Background())
	sr := &series{
		name:        name,
		period:      period,
		constraints: c,
		task:        applyMiddlewares(&refreshTask{name: name, refresher: s.refresher}, s.middlewares...),
		ctx:         ctx,
		cancel:      cancel,
		trigger:     make(chan struct{}, 1),
		rec: Record{
			Name:        name,
			Period:      period,
			Constraints: c,
			NextRun:     first,
			LastRun:     prev.LastRun,
			LastError:   prev.LastError,
			Failures:    prev.Failures,
		},
	}
	sr.entryID = s.cron.Schedule(newPeriodSchedule(period, first), cron.FuncJob(func() { s.tick(sr) }))
	s.series[name] = sr
	s.save(sr.record())

	s.runner.GoNamedWithContext(ctx, "schedule-"+name, func(ctx context.Context) {
		s.loop(ctx, sr)
	})

	s.logger.Info("schedule registered",
		zap.String("schedule", name),
		zap.Duration("period", period),
		zap.Stringer("constraints", c),
		zap.Stringer("policy", policy),
		zap.Time("next_run", first),
	)
	return nil
}

func (s *scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.series[name]
	if !ok {
		return false
	}
	s.stopSeries(sr)
	delete(s.series, name)
	if err := s.state.Delete(name); err != nil {
		s.logger.Warn("failed to delete schedule state", zap.String("schedule", name), zap.Error(err))
	}
	s.logger.Info("schedule cancelled", zap.String("schedule", name))
	return true
}

func (s *scheduler) State(name string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.series[name]
	if !ok {
		return Idle, false
	}
	return State(sr.state.Load()), true
}

func (s *scheduler) Series() []SeriesInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SeriesInfo, 0, len(s.series))
	for _, sr := range s.series {
		rec := sr.record()
		out = append(out, SeriesInfo{
			Name:        sr.name,
			Period:      sr.period,
			Constraints: sr.constraints,
			State:       State(sr.state.Load()),
			NextRun:     rec.NextRun,
			LastRun:     rec.LastRun,
			LastError:   rec.LastError,
			Failures:    rec.Failures,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// stopSeries removes the timer and stops the series loop. A refresh the
// loop is waiting on keeps running in the pipeline.
func (s *scheduler) stopSeries(sr *series) {
	s.cron.Remove(sr.entryID)
	sr.cancel()
}

// tick runs on the cron goroutine pool; a tick for a busy series is dropped
func (s *scheduler) tick(sr *series) {
	if State(sr.state.Load()) != Idle {
		s.logger.Debug("tick coalesced", zap.String("schedule", sr.name), zap.Stringer("state", State(sr.state.Load())))
		return
	}
	select {
	case sr.trigger <- struct{}{}:
	default:
	}
}

func (s *scheduler) loop(ctx context.Context, sr *series) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sr.trigger:
		}

		next := s.cron.Entry(sr.entryID).Next
		s.save(sr.update(func(r *Record) {
			if !next.IsZero() {
				r.NextRun = next
			}
		}))
		s.runPeriod(ctx, sr)

		select {
		case <-sr.trigger:
			s.logger.Debug("tick coalesced", zap.String("schedule", sr.name))
		default:
		}
	}
}

func (s *scheduler) runPeriod(ctx context.Context, sr *series) {
	defer sr.setState(Idle)

	for attempt := 1; ; attempt++ {
		if !s.awaitConstraints(ctx, sr) {
			return
		}

		sr.setState(Running)
		err := sr.task.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		s.recordRun(sr, err)
		if err == nil {
			return
		}

		if attempt > s.cfg.MaxRetries {
			s.logger.Warn("retries exhausted, waiting for next period",
				zap.String("schedule", sr.name),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}

		delay := backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffMax, attempt)
		sr.setState(Backoff)
		s.logger.Info("retrying after backoff",
			zap.String("schedule", sr.name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
		)
		if !sleep(ctx, delay) {
			return
		}
	}
}

// awaitConstraints blocks until the constraints hold; it reports false if
// the series was stopped first
func (s *scheduler) awaitConstraints(ctx context.Context, sr *series) bool {
	for {
		ok, err := s.checker.Satisfied(ctx, sr.constraints)
		if err != nil {
			s.logger.Warn("constraint check failed", zap.String("schedule", sr.name), zap.Error(err))
		} else if ok {
			return true
		}

		if sr.setState(ConstraintsPending) != ConstraintsPending {
			s.logger.Info("waiting for constraints",
				zap.String("schedule", sr.name),
				zap.Stringer("constraints", sr.constraints),
			)
		}
		if !sleep(ctx, s.cfg.ConstraintPollInterval) {
			return false
		}
	}
}

func (s *scheduler) recordRun(sr *series, err error) {
	s.save(sr.update(func(r *Record) {
		r.LastRun = time.Now()
		if err != nil {
			r.LastError = err.Error()
			r.Failures++
		} else {
			r.LastError = ""
			r.Failures = 0
		}
	}))
}

func (s *scheduler) save(rec Record) {
	if err := s.state.Save(rec); err != nil {
		s.logger.Warn("failed to save schedule state", zap.String("schedule", rec.Name), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// cronLogger routes robfig/cron logs to the scheduler logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), zap.Error(err))...)
}

func kvFields(kv []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
