package scheduler

import (
	"errors"
	"time"
)

var (
	ErrBadInterval = errors.New("scheduler: interval must be > 0")
	ErrNilRunnable = errors.New("scheduler: runnable is nil")
	ErrNilNextFunc = errors.New("scheduler: recurring kind requires a next function")
)

// Runnable is the unit of work a task executes.
//
// Run is called on the scheduler loop goroutine. A panic inside Run is
// recovered and treated as an error; it never terminates the loop.
type Runnable interface {
	Run() error
}

// RunnableFunc adapts a plain function to Runnable.
type RunnableFunc func() error

func (f RunnableFunc) Run() error { return f() }

// NextFunc computes the next occurrence of a recurring task.
//
// It receives the actual fire time (not the theoretical slot), so recurring
// tasks are drift-tolerant: a long-running callback shifts subsequent fires
// instead of causing a burst of catch-up runs.
type NextFunc func(now time.Time) time.Time

// Kind describes a task's run policy.
type Kind int

const (
	KindOnce Kind = iota
	KindInterval
	KindDaily
	// KindCron is reserved. The scheduler core has no cron semantics; cron
	// tasks are created through ScheduleNext with a caller-supplied NextFunc
	// (see CronNext).
	KindCron
)

func (k Kind) String() string {
	switch k {
	case KindOnce:
		return "once"
	case KindInterval:
		return "interval"
	case KindDaily:
		return "daily"
	case KindCron:
		return "cron"
	default:
		return "unknown"
	}
}

// task is the scheduler's internal record. All fields are guarded by the
// scheduler mutex; the loop takes a copy of what it needs before releasing it.
type task struct {
	id       int64
	name     string
	run      Runnable
	kind     Kind
	nextRun  time.Time
	interval time.Duration // informational; meaningful for interval/daily
	next     NextFunc      // nil for one-shot tasks
	enabled  bool
	runCount int
	lastRun  time.Time // zero means never ran

	// heapIndex is maintained by taskQueue.
	heapIndex int
}

// TaskSnapshot is a point-in-time copy of a live task, safe to retain.
type TaskSnapshot struct {
	ID       int64
	Name     string
	Kind     Kind
	NextRun  time.Time
	Interval time.Duration
	RunCount int
	LastRun  time.Time
	Enabled  bool
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration,omitempty"`
	RunCount int           `json:"run_count,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Config controls the scheduler loop.
//
// Defaults: PollInterval 50ms, StopTimeout 2s.
type Config struct {
	PollInterval time.Duration
	StopTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 2 * time.Second
	}
	return c
}
