package keepalive

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "autokit/pkg/logx"
)

func TestWithTimeoutSuccess(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, "op", func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("WithTimeout: %v", err)
	}
}

func TestWithTimeoutExpires(t *testing.T) {
	start := time.Now()
	err := WithTimeout(context.Background(), 20*time.Millisecond, "receive", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("took %v, deadline not enforced", elapsed)
	}
}

func TestWithTimeoutPreservesOpError(t *testing.T) {
	boom := errors.New("boom")
	err := WithTimeout(context.Background(), time.Second, "op", func(ctx context.Context) error {
		return boom
	})
	if err != boom {
		t.Fatalf("err = %v, want the op's own error", err)
	}
}

func TestReconnectorBackoffSequence(t *testing.T) {
	r := NewReconnector(Config{InitialBackoff: time.Second, MaxBackoff: 32 * time.Second, MaxReconnects: 10}, logx.Nop())

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 32 * time.Second,
	}
	for i, w := range want {
		if got := r.Delay(); got != w {
			t.Fatalf("delay %d = %v, want %v", i, got, w)
		}
	}

	r.Reset()
	if got := r.Delay(); got != time.Second {
		t.Fatalf("delay after reset = %v, want 1s", got)
	}
}

func TestReconnectorMore(t *testing.T) {
	r := NewReconnector(Config{MaxReconnects: 2, InitialBackoff: time.Millisecond}, logx.Nop())
	if !r.More() {
		t.Fatal("fresh reconnector has no attempts")
	}
	r.Delay()
	r.Delay()
	if r.More() {
		t.Fatal("attempts not exhausted after max delays")
	}
}

func TestReconnectorRunSucceeds(t *testing.T) {
	r := NewReconnector(Config{MaxReconnects: 5, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, logx.Nop())

	calls := 0
	err := r.Run(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("connect called %d times, want 3", calls)
	}
	// Counter reset on success: ready for the next outage.
	if !r.More() {
		t.Fatal("attempts not reset after success")
	}
}

func TestReconnectorRunExhausted(t *testing.T) {
	r := NewReconnector(Config{MaxReconnects: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, logx.Nop())

	refused := errors.New("refused")
	calls := 0
	err := r.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return refused
	})
	if !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("err = %v, want attempts exhausted", err)
	}
	if !errors.Is(err, refused) {
		t.Fatalf("err = %v, want last connect error wrapped", err)
	}
	if calls != 3 {
		t.Fatalf("connect called %d times, want 3", calls)
	}
}

func TestReconnectorRunCancelled(t *testing.T) {
	r := NewReconnector(Config{MaxReconnects: 3, InitialBackoff: time.Hour}, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Run(ctx, func(ctx context.Context) error { return errors.New("never reached") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancel did not abort the backoff sleep: %v", elapsed)
	}
}

func TestPingerSendsAndJoins(t *testing.T) {
	p := NewPinger(10*time.Millisecond, logx.Nop())

	var pings atomic.Int32
	p.Start(func() error {
		pings.Add(1)
		return nil
	})

	deadline := time.Now().Add(time.Second)
	for pings.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pings.Load() < 2 {
		t.Fatalf("only %d pings before deadline", pings.Load())
	}

	p.Stop()
	after := pings.Load()
	time.Sleep(50 * time.Millisecond)
	if got := pings.Load(); got != after {
		t.Fatalf("%d pings after Stop returned", got-after)
	}
}

func TestPingerStopsOnSendError(t *testing.T) {
	p := NewPinger(5*time.Millisecond, logx.Nop())

	var pings atomic.Int32
	p.Start(func() error {
		pings.Add(1)
		return errors.New("broken pipe")
	})

	deadline := time.Now().Add(time.Second)
	for pings.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(30 * time.Millisecond)
	if got := pings.Load(); got != 1 {
		t.Fatalf("ping loop survived a send error: %d pings", got)
	}
	// Stop after self-exit must not hang.
	p.Stop()
}

func TestPingerStopWithoutStart(t *testing.T) {
	NewPinger(time.Second, logx.Nop()).Stop()
}
