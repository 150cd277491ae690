package schedule

import (
	"sync"
	"time"
)

// periodSchedule fires every period. Its first activation is taken from
// first, and an activation that is already overdue fires at once.
type periodSchedule struct {
	period time.Duration

	mu    sync.Mutex
	first time.Time
}

func newPeriodSchedule(period time.Duration, first time.Time) *periodSchedule {
	return &periodSchedule{period: period, first: first}
}

// Next implements cron.Schedule
func (p *periodSchedule) Next(t time.Time) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.first.IsZero() {
		next := p.first
		p.first = time.Time{}
		if next.Before(t) {
			return t
		}
		return next
	}
	return t.Add(p.period)
}

// backoffDelay returns base * 2^(attempt-1), capped at max
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 32 {
		return max
	}
	d := base << (attempt - 1)
	if d <= 0 || d > max {
		return max
	}
	return d
}
