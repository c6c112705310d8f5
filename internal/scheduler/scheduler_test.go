package scheduler

import (
	"container/heap"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "autokit/pkg/logx"
)

func testConfig() Config {
	return Config{PollInterval: 5 * time.Millisecond, StopTimeout: time.Second}
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(testConfig(), logx.Nop(), nil)
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestQueueOrdering(t *testing.T) {
	now := time.Now()
	var q taskQueue
	for _, d := range []time.Duration{30, 10, 50, 20, 40} {
		heap.Push(&q, &task{id: int64(d), nextRun: now.Add(d * time.Millisecond)})
	}
	var prev time.Time
	for q.Len() > 0 {
		tk := heap.Pop(&q).(*task)
		if tk.nextRun.Before(prev) {
			t.Fatalf("pop out of order: %v before %v", tk.nextRun, prev)
		}
		prev = tk.nextRun
	}
}

func TestScheduleOnceFiresExactlyOnce(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	start := time.Now()
	var fired atomic.Int64
	id, err := s.ScheduleOnce(RunnableFunc(func() error {
		runs.Add(1)
		fired.Store(int64(time.Since(start)))
		return nil
	}), 30*time.Millisecond, "once")
	if err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	waitFor(t, time.Second, func() bool { return runs.Load() == 1 })
	if got := time.Duration(fired.Load()); got < 25*time.Millisecond {
		t.Fatalf("fired too early: %v", got)
	}

	// Exactly once: no further fires and the task is gone.
	time.Sleep(50 * time.Millisecond)
	if n := runs.Load(); n != 1 {
		t.Fatalf("one-shot ran %d times", n)
	}
	if len(s.Tasks()) != 0 {
		t.Fatalf("one-shot still listed after firing: %+v", s.Tasks())
	}
}

func TestScheduleOnceNegativeDelayClamped(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	if _, err := s.ScheduleOnce(RunnableFunc(func() error {
		runs.Add(1)
		return nil
	}), -time.Hour, ""); err != nil {
		t.Fatalf("negative delay rejected: %v", err)
	}
	waitFor(t, time.Second, func() bool { return runs.Load() == 1 })
}

func TestScheduleIntervalRepeatsAndCancelStops(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	id, err := s.ScheduleInterval(RunnableFunc(func() error {
		runs.Add(1)
		return nil
	}), 10*time.Millisecond, "tick", false)
	if err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}

	waitFor(t, time.Second, func() bool { return runs.Load() >= 3 })

	if !s.Cancel(id) {
		t.Fatal("Cancel returned false for live task")
	}
	after := runs.Load()
	time.Sleep(60 * time.Millisecond)
	// At most one in-flight fire may land after Cancel, never more.
	if got := runs.Load(); got > after+1 {
		t.Fatalf("task fired %d times after cancel", got-after)
	}
	if s.Cancel(id) {
		t.Fatal("Cancel returned true for already-cancelled task")
	}
}

func TestScheduleIntervalStartImmediately(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	if _, err := s.ScheduleInterval(RunnableFunc(func() error {
		runs.Add(1)
		return nil
	}), time.Hour, "", true); err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
	// First fire is due now despite the huge interval.
	waitFor(t, time.Second, func() bool { return runs.Load() == 1 })
}

func TestScheduleValidation(t *testing.T) {
	s := New(testConfig(), logx.Nop(), nil)

	if _, err := s.ScheduleOnce(nil, time.Second, ""); !errors.Is(err, ErrNilRunnable) {
		t.Fatalf("nil runnable: got %v", err)
	}
	noop := RunnableFunc(func() error { return nil })
	if _, err := s.ScheduleInterval(noop, 0, "", false); !errors.Is(err, ErrBadInterval) {
		t.Fatalf("zero interval: got %v", err)
	}
	if _, err := s.ScheduleInterval(noop, -time.Second, "", false); !errors.Is(err, ErrBadInterval) {
		t.Fatalf("negative interval: got %v", err)
	}
	if _, err := s.ScheduleNext(noop, KindInterval, time.Time{}, nil, ""); !errors.Is(err, ErrNilNextFunc) {
		t.Fatalf("recurring without next: got %v", err)
	}
	if _, err := s.ScheduleDaily(noop, "25:00", ""); err == nil {
		t.Fatal("expected error for hour 25")
	}
	if _, err := s.ScheduleDaily(noop, "noon", ""); err == nil {
		t.Fatal("expected error for malformed time")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := New(testConfig(), logx.Nop(), nil)
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	// Stop before Start is also a no-op.
	s2 := New(testConfig(), logx.Nop(), nil)
	s2.Stop()
}

func TestTasksSnapshot(t *testing.T) {
	s := newTestScheduler(t)

	var runs atomic.Int32
	id, err := s.ScheduleInterval(RunnableFunc(func() error {
		runs.Add(1)
		return nil
	}), 10*time.Millisecond, "snap", false)
	if err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}

	waitFor(t, time.Second, func() bool { return runs.Load() >= 2 })

	snaps := s.Tasks()
	if len(snaps) != 1 {
		t.Fatalf("expected 1 task, got %d", len(snaps))
	}
	snap := snaps[0]
	if snap.ID != id || snap.Name != "snap" || snap.Kind != KindInterval {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.RunCount < 2 {
		t.Fatalf("run count = %d, want >= 2", snap.RunCount)
	}
	if !snap.NextRun.After(snap.LastRun) {
		t.Fatalf("next run %v not after last run %v", snap.NextRun, snap.LastRun)
	}
}

func TestPanicIsolation(t *testing.T) {
	s := newTestScheduler(t)

	var panics, healthy atomic.Int32
	if _, err := s.ScheduleInterval(RunnableFunc(func() error {
		panics.Add(1)
		panic("boom")
	}), 10*time.Millisecond, "panicky", true); err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}
	if _, err := s.ScheduleInterval(RunnableFunc(func() error {
		healthy.Add(1)
		return nil
	}), 10*time.Millisecond, "healthy", true); err != nil {
		t.Fatalf("ScheduleInterval: %v", err)
	}

	// The panicking task keeps being rescheduled and the healthy one keeps
	// firing; the loop survives.
	waitFor(t, time.Second, func() bool { return panics.Load() >= 2 && healthy.Load() >= 2 })
}

func TestDailyNext(t *testing.T) {
	loc := time.UTC
	next := dailyNext(9, 30)

	before := time.Date(2026, 8, 23, 8, 0, 0, 0, loc)
	if got, want := next(before), time.Date(2026, 8, 23, 9, 30, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("before target: got %v, want %v", got, want)
	}

	after := time.Date(2026, 8, 23, 10, 0, 0, 0, loc)
	if got, want := next(after), time.Date(2026, 8, 24, 9, 30, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("after target: got %v, want %v", got, want)
	}

	exact := time.Date(2026, 8, 23, 9, 30, 0, 0, loc)
	if got, want := next(exact), time.Date(2026, 8, 24, 9, 30, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("at target: got %v, want %v", got, want)
	}
}

func TestParseHHMM(t *testing.T) {
	h, m, err := parseHHMM("07:45")
	if err != nil || h != 7 || m != 45 {
		t.Fatalf("parseHHMM(07:45) = %d, %d, %v", h, m, err)
	}
	for _, bad := range []string{"", "7", "7:5:0", "24:00", "12:60", "ab:cd"} {
		if _, _, err := parseHHMM(bad); err == nil {
			t.Fatalf("parseHHMM(%q) accepted", bad)
		}
	}
}

func TestCronNext(t *testing.T) {
	next, err := CronNext("0 3 * * *")
	if err != nil {
		t.Fatalf("CronNext: %v", err)
	}
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	if got, want := next(now), time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("next = %v, want %v", got, want)
	}

	if _, err := CronNext("not a cron spec"); err == nil {
		t.Fatal("expected error for bad spec")
	}
}

func TestDelayedExecutor(t *testing.T) {
	e := NewDelayedExecutor(testConfig(), logx.Nop(), nil)
	defer e.Stop()

	var once, repeat atomic.Int32
	if _, err := e.Delay(RunnableFunc(func() error {
		once.Add(1)
		return nil
	}), 10*time.Millisecond); err != nil {
		t.Fatalf("Delay: %v", err)
	}
	id, err := e.Repeat(RunnableFunc(func() error {
		repeat.Add(1)
		return nil
	}), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Repeat: %v", err)
	}

	waitFor(t, time.Second, func() bool { return once.Load() == 1 && repeat.Load() >= 2 })
	if !e.Cancel(id) {
		t.Fatal("Cancel returned false")
	}
}
