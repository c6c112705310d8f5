package scheduler

import (
	"container/heap"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"autokit/internal/eventbus"
	logx "autokit/pkg/logx"
)

// Scheduler owns a task queue and a single background execution loop.
//
// All methods are safe for concurrent use. The zero value is not usable;
// construct with New.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[int64]*task // authoritative liveness table
	queue taskQueue
	idSeq int64

	cfg Config
	log logx.Logger
	bus eventbus.Bus

	// failWarn throttles repeated "task failed" warnings so a callback that
	// fails every poll tick cannot flood the log.
	failWarn *rate.Limiter

	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Scheduler {
	return &Scheduler{
		tasks:    make(map[int64]*task),
		cfg:      cfg.withDefaults(),
		log:      log,
		bus:      bus,
		failWarn: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// ScheduleOnce enqueues a one-shot task firing after delay.
// A negative delay is clamped to zero (the task is already due), not rejected.
func (s *Scheduler) ScheduleOnce(r Runnable, delay time.Duration, name string) (int64, error) {
	if r == nil {
		return 0, ErrNilRunnable
	}
	if delay < 0 {
		delay = 0
	}
	return s.add(r, KindOnce, time.Now().Add(delay), 0, nil, name), nil
}

// ScheduleInterval enqueues a recurring task. If startImmediately, the first
// fire is due now; otherwise after one interval. interval must be > 0.
func (s *Scheduler) ScheduleInterval(r Runnable, interval time.Duration, name string, startImmediately bool) (int64, error) {
	if r == nil {
		return 0, ErrNilRunnable
	}
	if interval <= 0 {
		return 0, ErrBadInterval
	}
	now := time.Now()
	first := now.Add(interval)
	if startImmediately {
		first = now
	}
	next := func(now time.Time) time.Time { return now.Add(interval) }
	return s.add(r, KindInterval, first, interval, next, name), nil
}

// ScheduleDaily enqueues a task firing every day at the given wall-clock
// time ("HH:MM", local time).
func (s *Scheduler) ScheduleDaily(r Runnable, atHHMM string, name string) (int64, error) {
	if r == nil {
		return 0, ErrNilRunnable
	}
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return 0, err
	}
	next := dailyNext(h, m)
	return s.add(r, KindDaily, next(time.Now()), 24*time.Hour, next, name), nil
}

// ScheduleNext is the low-level entry point: the caller supplies the first due
// time and a next-occurrence function. This is how reserved kinds (Cron) are
// scheduled without the core knowing their semantics.
//
// A zero first time means "due now". next may be nil only for KindOnce.
func (s *Scheduler) ScheduleNext(r Runnable, kind Kind, first time.Time, next NextFunc, name string) (int64, error) {
	if r == nil {
		return 0, ErrNilRunnable
	}
	if next == nil && kind != KindOnce {
		return 0, ErrNilNextFunc
	}
	if first.IsZero() {
		first = time.Now()
	}
	return s.add(r, kind, first, 0, next, name), nil
}

func (s *Scheduler) add(r Runnable, kind Kind, first time.Time, interval time.Duration, next NextFunc, name string) int64 {
	s.mu.Lock()
	s.idSeq++
	id := s.idSeq
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("task_%d", id)
	}
	t := &task{
		id:       id,
		name:     name,
		run:      r,
		kind:     kind,
		nextRun:  first,
		interval: interval,
		next:     next,
		enabled:  true,
	}
	s.tasks[id] = t
	heap.Push(&s.queue, t)
	s.mu.Unlock()

	s.publish(eventbus.TopicTaskScheduled, TaskEvent{ID: id, Name: name, Kind: kind.String(), At: first})
	s.log.Debug("task scheduled",
		logx.Int64("id", id), logx.String("task", name),
		logx.String("kind", kind.String()), logx.Time("next_run", first))
	return id
}

// Cancel removes the task from the lookup table and reports whether it was
// present. The heap entry, if still pending, is discarded lazily on pop.
func (s *Scheduler) Cancel(id int64) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		t.enabled = false
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	if ok {
		s.publish(eventbus.TopicTaskCancelled, TaskEvent{ID: id, Name: t.name, Kind: t.kind.String(), At: time.Now()})
		s.log.Debug("task cancelled", logx.Int64("id", id), logx.String("task", t.name))
	}
	return ok
}

// Start launches the background execution loop. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	poll := s.cfg.PollInterval
	s.mu.Unlock()

	go s.loop(stopCh, done, poll)
	s.log.Info("scheduler started", logx.Duration("poll_interval", poll))
}

// Stop signals the loop to exit and waits (bounded by StopTimeout) for it to
// finish. A callback in flight is allowed to complete. Stop before Start, or
// calling Stop twice, is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-time.After(s.cfg.StopTimeout):
		s.log.Warn("scheduler stop timed out", logx.Duration("timeout", s.cfg.StopTimeout))
	}
}

// Tasks returns a point-in-time snapshot of all live (non-cancelled) tasks.
func (s *Scheduler) Tasks() []TaskSnapshot {
	s.mu.Lock()
	out := make([]TaskSnapshot, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, TaskSnapshot{
			ID:       t.id,
			Name:     t.name,
			Kind:     t.kind,
			NextRun:  t.nextRun,
			Interval: t.interval,
			RunCount: t.runCount,
			LastRun:  t.lastRun,
			Enabled:  t.enabled,
		})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) loop(stopCh <-chan struct{}, done chan<- struct{}, poll time.Duration) {
	defer close(done)

	tick := time.NewTicker(poll)
	defer tick.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-tick.C:
			s.runDue(now)
		}
	}
}

// runDue pops and executes every due, live task in ascending nextRun order.
// The mutex is released around each callback so Schedule*/Cancel never wait on
// a running task.
func (s *Scheduler) runDue(now time.Time) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.queue[0].nextRun.After(now) {
			s.mu.Unlock()
			return
		}
		t := heap.Pop(&s.queue).(*task)
		// Lazy cancellation: skip entries no longer in the liveness table.
		if !t.enabled || s.tasks[t.id] != t {
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		started := time.Now()
		err := s.runOne(t)
		finished := time.Now()

		s.mu.Lock()
		t.runCount++
		t.lastRun = finished
		runCount := t.runCount
		rescheduled := false
		if t.next != nil {
			// The task may have been cancelled while running; never resurrect it.
			if live := s.tasks[t.id] == t && t.enabled; live {
				// Anchor to the actual fire time, not the theoretical slot.
				t.nextRun = t.next(finished)
				heap.Push(&s.queue, t)
				rescheduled = true
			}
		}
		if !rescheduled {
			delete(s.tasks, t.id)
		}
		s.mu.Unlock()

		ev := TaskEvent{
			ID:       t.id,
			Name:     t.name,
			Kind:     t.kind.String(),
			At:       started,
			Duration: finished.Sub(started),
			RunCount: runCount,
		}
		if err != nil {
			ev.Error = err.Error()
			s.publish(eventbus.TopicTaskFailed, ev)
			if s.failWarn.Allow() {
				s.log.Warn("task failed",
					logx.Int64("id", t.id), logx.String("task", t.name),
					logx.Duration("dur", ev.Duration), logx.Err(err))
			} else {
				s.log.Debug("task failed (throttled)",
					logx.Int64("id", t.id), logx.String("task", t.name), logx.Err(err))
			}
		} else {
			s.publish(eventbus.TopicTaskFired, ev)
			s.log.Debug("task fired",
				logx.Int64("id", t.id), logx.String("task", t.name),
				logx.Duration("dur", ev.Duration), logx.Int("run_count", runCount))
		}
	}
}

// runOne executes the callback with panic isolation: one misbehaving task can
// never terminate the loop or starve other tasks.
func (s *Scheduler) runOne(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("task panicked",
				logx.Int64("id", t.id), logx.String("task", t.name),
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return t.run.Run()
}

func (s *Scheduler) publish(topic string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Topic: topic, Time: time.Now(), Data: ev})
}
