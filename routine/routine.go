// Package routine runs background work with panic recovery.
//
// A panic inside a refresh, a schedule series or a forwarder must never take
// the host process down, so every goroutine in vidcache is started through
// this package instead of a bare `go` statement.
package routine

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dailyyoga/vidcache/logger"
	"go.uber.org/zap"
)

// Runner starts tracked goroutines and waits for them
type Runner interface {
	// GoNamed executes fn in a new goroutine with panic recovery
	// The name is attached to the panic log entry
	GoNamed(name string, fn func())

	// GoNamedWithContext executes fn with ctx in a new goroutine
	GoNamedWithContext(ctx context.Context, name string, fn func(ctx context.Context))

	// Wait blocks until every goroutine started by this runner returned
	Wait()

	// WaitTimeout is Wait bounded by d; it reports whether all goroutines finished
	WaitTimeout(d time.Duration) bool
}

type defaultRunner struct {
	log logger.Logger
	wg  sync.WaitGroup
}

// New creates a new Runner with the given logger
func New(log logger.Logger) Runner {
	return &defaultRunner{log: log}
}

func (r *defaultRunner) GoNamed(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer recoverWithLog(r.log, name)
		fn()
	}()
}

func (r *defaultRunner) GoNamedWithContext(ctx context.Context, name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer recoverWithLog(r.log, name)
		fn(ctx)
	}()
}

func (r *defaultRunner) Wait() {
	r.wg.Wait()
}

func (r *defaultRunner) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// GoNamed is the untracked variant of Runner.GoNamed for fire-and-forget work
func GoNamed(log logger.Logger, name string, fn func()) {
	go func() {
		defer recoverWithLog(log, name)
		fn()
	}()
}

// Recover logs a recovered panic and converts it to an error.
// It must be called directly from a deferred function:
//
//	defer func() { err = routine.Recover(log, "name", recover(), err) }()
func Recover(log logger.Logger, name string, rec any, err error) error {
	if rec == nil {
		return err
	}
	logPanic(log, name, rec)
	return ErrPanic(rec)
}

func recoverWithLog(log logger.Logger, name string) {
	if rec := recover(); rec != nil {
		logPanic(log, name, rec)
	}
}

func logPanic(log logger.Logger, name string, rec any) {
	fields := []zap.Field{
		zap.Any("panic", rec),
		zap.String("stack", string(debug.Stack())),
	}
	if name != "" {
		fields = append([]zap.Field{zap.String("routine", name)}, fields...)
	}
	log.Error("goroutine panicked", fields...)
}
