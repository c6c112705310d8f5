package journal

import (
	"context"
	"time"

	"autokit/internal/eventbus"
	"autokit/internal/scheduler"
	logx "autokit/pkg/logx"
)

// Recorder drains task lifecycle events off the bus into a Store. It owns one
// background goroutine; Stop unsubscribes and joins it.
type Recorder struct {
	store Store
	log   logx.Logger

	unsub func()
	done  chan struct{}
}

// NewRecorder subscribes to task fire/failure events and starts recording.
// A nil store yields a no-op recorder (Stop is still safe).
func NewRecorder(store Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	r := &Recorder{store: store, log: log, done: make(chan struct{})}
	if store == nil || bus == nil {
		close(r.done)
		return r
	}

	ch, unsub := bus.Subscribe(256)
	r.unsub = unsub
	go r.drain(ch)
	return r
}

func (r *Recorder) drain(ch <-chan eventbus.Event) {
	defer close(r.done)
	for ev := range ch {
		if ev.Topic != eventbus.TopicTaskFired && ev.Topic != eventbus.TopicTaskFailed {
			continue
		}
		te, ok := ev.Data.(scheduler.TaskEvent)
		if !ok {
			continue
		}
		rec := RunRecord{
			At:       te.At,
			TaskID:   te.ID,
			TaskName: te.Name,
			Kind:     te.Kind,
			Duration: te.Duration.Milliseconds(),
			RunCount: te.RunCount,
			Error:    te.Error,
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := r.store.AppendRun(ctx, rec); err != nil {
			r.log.Debug("run record append failed", logx.String("task", rec.TaskName), logx.Err(err))
		}
		cancel()
	}
}

// Stop unsubscribes from the bus and waits for in-flight appends to finish.
func (r *Recorder) Stop() {
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}
	<-r.done
}
