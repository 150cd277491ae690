package schedule

import (
	"context"
	"time"

	"github.com/dailyyoga/vidcache/logger"
	"github.com/dailyyoga/vidcache/routine"
	"go.uber.org/zap"
)

// Task is one unit of work started by a series
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Middleware wraps a Task with additional behavior
type Middleware func(Task) Task

// applyMiddlewares applies mws so that the first one is outermost:
// applyMiddlewares(t, mw1, mw2) == mw1(mw2(t))
func applyMiddlewares(t Task, mws ...Middleware) Task {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i](t)
	}
	return t
}

// recoveryMiddleware turns a panic inside the task into an error
func recoveryMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) (err error) {
				defer func() { err = routine.Recover(log, next.Name(), recover(), err) }()
				return next.Run(ctx)
			},
		}
	}
}

// loggingMiddleware logs start, finish and failure of every run
func loggingMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return &wrappedTask{
			name: next.Name(),
			exec: func(ctx context.Context) error {
				start := time.Now()
				log.Info("task started", zap.String("task", next.Name()))

				err := next.Run(ctx)

				duration := time.Since(start)
				if err != nil {
					log.Warn("task failed",
						zap.String("task", next.Name()),
						zap.Duration("duration", duration),
						zap.Error(err),
					)
				} else {
					log.Info("task completed",
						zap.String("task", next.Name()),
						zap.Duration("duration", duration),
					)
				}
				return err
			},
		}
	}
}

type wrappedTask struct {
	name string
	exec func(ctx context.Context) error
}

func (w *wrappedTask) Name() string {
	return w.name
}

func (w *wrappedTask) Run(ctx context.Context) error {
	return w.exec(ctx)
}

// refreshTask starts a refresh through the refresher
type refreshTask struct {
	name      string
	refresher Refresher
}

func (t *refreshTask) Name() string {
	return t.name
}

func (t *refreshTask) Run(ctx context.Context) error {
	return t.refresher.RefreshNow(ctx)
}
