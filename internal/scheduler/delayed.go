package scheduler

import (
	"time"

	"autokit/internal/eventbus"
	logx "autokit/pkg/logx"
)

// DelayedExecutor is a convenience facade over a privately owned, auto-started
// Scheduler. It has no state or invariants of its own.
type DelayedExecutor struct {
	s *Scheduler
}

func NewDelayedExecutor(cfg Config, log logx.Logger, bus eventbus.Bus) *DelayedExecutor {
	s := New(cfg, log, bus)
	s.Start()
	return &DelayedExecutor{s: s}
}

// Delay runs r once after the given delay.
func (e *DelayedExecutor) Delay(r Runnable, delay time.Duration) (int64, error) {
	return e.s.ScheduleOnce(r, delay, "")
}

// Repeat runs r on the given interval, first fire after one interval.
func (e *DelayedExecutor) Repeat(r Runnable, interval time.Duration) (int64, error) {
	return e.s.ScheduleInterval(r, interval, "", false)
}

func (e *DelayedExecutor) Cancel(id int64) bool { return e.s.Cancel(id) }

func (e *DelayedExecutor) Stop() { e.s.Stop() }
