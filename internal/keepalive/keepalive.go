// Package keepalive hardens long-lived connections: timeout-wrapped
// operations, reconnect with exponential backoff, and a joined ping loop.
//
// All blocking points honor context cancellation, and the ping loop is
// always joined on Stop so no background goroutine outlives its owner.
package keepalive

import (
	"context"
	"errors"
	"fmt"
	"time"

	logx "autokit/pkg/logx"
)

// ErrAttemptsExhausted means every reconnect attempt failed.
var ErrAttemptsExhausted = errors.New("keepalive: reconnect attempts exhausted")

// Config tunes the keepalive helpers. The zero value is usable.
type Config struct {
	Timeout        time.Duration // per-operation timeout, default 30s
	PingInterval   time.Duration // default 10s
	MaxReconnects  int           // default 5
	InitialBackoff time.Duration // default 1s
	MaxBackoff     time.Duration // default 32s
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 10 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 32 * time.Second
	}
	return c
}

// WithTimeout runs op under a deadline. A timed-out op sees its context
// cancelled; the caller gets context.DeadlineExceeded wrapped with the
// operation name.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := op(ctx)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s timed out after %s: %w", name, timeout, context.DeadlineExceeded)
	}
	return err
}

// Reconnector computes exponential reconnect backoff and tracks how many
// attempts remain. Not safe for concurrent use; one Reconnector guards one
// connection.
type Reconnector struct {
	cfg     Config
	log     logx.Logger
	attempt int
}

func NewReconnector(cfg Config, log logx.Logger) *Reconnector {
	return &Reconnector{cfg: cfg.withDefaults(), log: log}
}

// Delay returns the backoff for the next attempt and advances the counter.
// The sequence is initial, 2x, 4x, ... clamped to MaxBackoff.
func (r *Reconnector) Delay() time.Duration {
	d := r.cfg.InitialBackoff
	for i := 0; i < r.attempt; i++ {
		d *= 2
		if d >= r.cfg.MaxBackoff {
			d = r.cfg.MaxBackoff
			break
		}
	}
	r.attempt++
	return d
}

// More reports whether reconnect attempts remain.
func (r *Reconnector) More() bool { return r.attempt < r.cfg.MaxReconnects }

// Reset zeroes the attempt counter after a successful connection.
func (r *Reconnector) Reset() { r.attempt = 0 }

// Run attempts connect until it succeeds or attempts are exhausted, sleeping
// the backoff delay before each attempt. On success the counter resets so the
// Reconnector is ready for the next outage. Returns ErrAttemptsExhausted
// (wrapping the last connect error) when every attempt failed, or ctx.Err if
// cancelled mid-backoff.
func (r *Reconnector) Run(ctx context.Context, connect func(ctx context.Context) error) error {
	var lastErr error
	for r.More() {
		delay := r.Delay()
		r.log.Info("reconnecting",
			logx.Duration("delay", delay),
			logx.Int("attempt", r.attempt), logx.Int("max_attempts", r.cfg.MaxReconnects))

		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return ctx.Err()
		case <-tmr.C:
		}

		if err := connect(ctx); err != nil {
			lastErr = err
			r.log.Warn("reconnect failed", logx.Int("attempt", r.attempt), logx.Err(err))
			continue
		}
		r.log.Info("reconnected", logx.Int("attempts", r.attempt))
		r.attempt = 0
		return nil
	}
	r.log.Error("reconnect attempts exhausted", logx.Int("attempts", r.attempt), logx.Err(lastErr))
	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrAttemptsExhausted, lastErr)
	}
	return ErrAttemptsExhausted
}

// Pinger sends a periodic ping on a background goroutine. Stop signals the
// loop and joins it, so after Stop returns no ping is in flight.
type Pinger struct {
	interval time.Duration
	log      logx.Logger

	stopCh chan struct{}
	done   chan struct{}
}

func NewPinger(interval time.Duration, log logx.Logger) *Pinger {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Pinger{interval: interval, log: log}
}

// Start launches the ping loop. A send error stops the loop; the connection
// owner notices via its own read path and reconnects.
func (p *Pinger) Start(sendPing func() error) {
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		tick := time.NewTicker(p.interval)
		defer tick.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-tick.C:
				if err := sendPing(); err != nil {
					p.log.Error("ping failed", logx.Err(err))
					return
				}
				p.log.Trace("ping sent")
			}
		}
	}()
}

// Stop signals the loop and waits for it to exit. Safe to call when the loop
// already exited on its own; a Stop without a prior Start is a no-op.
func (p *Pinger) Stop() {
	if p.stopCh == nil {
		return
	}
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	<-p.done
}
