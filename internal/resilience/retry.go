package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig controls Retry. The zero value is usable: defaults are
// 3 retries, 1s base delay, 30s max delay, exponential backoff with jitter.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Exponential and Jitter are pointers so the zero config means "on".
	Exponential *bool
	Jitter      *bool

	// RetryIf decides whether a failure is worth another attempt. Nil means
	// retry everything except errors wrapped with NoRetry.
	RetryIf func(error) bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Exponential == nil {
		c.Exponential = boolPtr(true)
	}
	if c.Jitter == nil {
		c.Jitter = boolPtr(true)
	}
	if c.RetryIf == nil {
		c.RetryIf = func(err error) bool { return !IsNoRetry(err) }
	}
	return c
}

func boolPtr(v bool) *bool { return &v }

// Retry runs op up to cfg.MaxRetries+1 times, sleeping a backoff delay
// between attempts. The backoff is base*2^attempt (constant when Exponential
// is off), clamped to MaxDelay, then multiplied by a uniform factor in
// [0.5, 1.5) when Jitter is on.
//
// Non-retryable failures propagate immediately without a backoff sleep. After
// attempts are exhausted the last failure is returned unchanged, never
// wrapped. A cancelled context aborts the backoff sleep and returns ctx.Err.
//
// Retry blocks the calling goroutine for the cumulative backoff duration.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.RetryIf(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}
		if err := sleepCtx(ctx, backoff(cfg, attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

func backoff(cfg RetryConfig, attempt int) time.Duration {
	d := cfg.BaseDelay
	if *cfg.Exponential {
		for i := 0; i < attempt; i++ {
			d *= 2
			if d >= cfg.MaxDelay {
				break
			}
		}
	}
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if *cfg.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
