package resilience

import (
	"sync"
	"time"
)

// State is a circuit breaker's position in the Closed/Open/HalfOpen machine.
type State int

const (
	// StateClosed permits calls; failures accumulate toward the threshold.
	StateClosed State = iota
	// StateOpen rejects calls without attempting the operation.
	StateOpen
	// StateHalfOpen permits probe calls to test whether the dependency
	// recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	// DefaultFailureThreshold opens the circuit after this many failures.
	DefaultFailureThreshold = 5
	// DefaultRecoveryTimeout is how long an open circuit waits before probing.
	DefaultRecoveryTimeout = 30 * time.Second

	// halfOpenQuorum is the number of consecutive probe successes needed to
	// close a half-open circuit.
	halfOpenQuorum = 3
)

// Breaker is a per-dependency circuit breaker.
//
// The Open to HalfOpen transition is computed lazily: reading State (directly
// or via CanExecute) after the recovery timeout has elapsed since the last
// failure promotes the breaker. All methods are safe for concurrent use; the
// read-triggered promotion and concurrent writes never interleave into an
// inconsistent state.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	successes   int // consecutive successes while half-open
	lastFailure time.Time
}

// NewBreaker creates a closed breaker. Non-positive threshold or timeout
// values fall back to the defaults.
func NewBreaker(name string, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

func (b *Breaker) Name() string { return b.name }

// State returns the current state, promoting Open to HalfOpen first if the
// recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked(time.Now())
}

func (b *Breaker) stateLocked(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.lastFailure) >= b.recoveryTimeout {
		b.state = StateHalfOpen
		b.successes = 0
	}
	return b.state
}

// CanExecute reports whether a call should be attempted. False means the
// breaker is open and the call must fail fast.
func (b *Breaker) CanExecute() bool {
	return b.State() != StateOpen
}

// RecordSuccess registers a successful call. While half-open, three
// consecutive successes close the circuit; in any other state it forgives
// accumulated failures.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stateLocked(time.Now()) == StateHalfOpen {
		b.successes++
		if b.successes >= halfOpenQuorum {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
		return
	}
	b.failures = 0
}

// RecordFailure registers a failed call. While half-open it reopens the
// circuit immediately; while closed it opens once the threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.stateLocked(now)

	b.failures++
	b.lastFailure = now
	b.successes = 0

	if b.failures >= b.failureThreshold {
		b.state = StateOpen
	}
}

// Reset returns the breaker to Closed with counters zeroed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

// Failures returns the current failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
