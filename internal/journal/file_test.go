package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"autokit/internal/eventbus"
	"autokit/internal/scheduler"
	logx "autokit/pkg/logx"
)

func openTestStore(t *testing.T, cfg Config) Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "runs.jsonl")
	}
	if cfg.Driver == "" {
		cfg.Driver = "file"
	}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: store=%v err=%v, want nil/nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func TestFileAppendAndRecent(t *testing.T) {
	st := openTestStore(t, Config{})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		err := st.AppendRun(ctx, RunRecord{
			TaskID:   int64(i),
			TaskName: "housekeeping",
			Kind:     "interval",
			Duration: int64(i * 10),
			RunCount: i,
		})
		if err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}

	runs, err := st.RecentRuns(ctx, 3)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	// Oldest first within the returned window.
	if runs[0].TaskID != 3 || runs[2].TaskID != 5 {
		t.Fatalf("unexpected window: %+v", runs)
	}
	if runs[0].At.IsZero() {
		t.Fatal("At not defaulted on append")
	}
}

func TestFileReplayAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := st.AppendRun(ctx, RunRecord{TaskID: 1, TaskName: "a", Kind: "once"}); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	runs, err := st2.RecentRuns(ctx, 0)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].TaskName != "a" {
		t.Fatalf("replayed runs = %+v", runs)
	}
}

func TestFilePrune(t *testing.T) {
	st := openTestStore(t, Config{})
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	if err := st.AppendRun(ctx, RunRecord{At: old, TaskID: 1, TaskName: "old", Kind: "once"}); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}
	if err := st.AppendRun(ctx, RunRecord{TaskID: 2, TaskName: "new", Kind: "once"}); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}

	removed, err := st.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	runs, err := st.RecentRuns(ctx, 0)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].TaskName != "new" {
		t.Fatalf("runs after prune = %+v", runs)
	}

	// Appends keep working on the rewritten file.
	if err := st.AppendRun(ctx, RunRecord{TaskID: 3, TaskName: "after", Kind: "once"}); err != nil {
		t.Fatalf("AppendRun after prune: %v", err)
	}
}

func TestRecorderCapturesBusEvents(t *testing.T) {
	st := openTestStore(t, Config{})
	bus := eventbus.New()

	rec := NewRecorder(st, bus, logx.Nop())

	bus.Publish(eventbus.Event{
		Topic: eventbus.TopicTaskFired,
		Data:  scheduler.TaskEvent{ID: 7, Name: "ping", Kind: "interval", At: time.Now(), RunCount: 1},
	})
	bus.Publish(eventbus.Event{
		Topic: eventbus.TopicTaskFailed,
		Data:  scheduler.TaskEvent{ID: 8, Name: "flaky", Kind: "once", At: time.Now(), Error: "boom"},
	})
	// Unrelated topics are ignored.
	bus.Publish(eventbus.Event{Topic: eventbus.TopicTaskScheduled, Data: scheduler.TaskEvent{ID: 9}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		runs, err := st.RecentRuns(context.Background(), 0)
		if err != nil {
			t.Fatalf("RecentRuns: %v", err)
		}
		if len(runs) == 2 {
			if runs[0].TaskName != "ping" || runs[1].Error != "boom" {
				t.Fatalf("recorded runs = %+v", runs)
			}
			rec.Stop()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("recorder did not persist bus events in time")
}

func TestRecorderNilStore(t *testing.T) {
	NewRecorder(nil, eventbus.New(), logx.Nop()).Stop()
}
