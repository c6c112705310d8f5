package resilience

import (
	"sync"
	"time"

	"autokit/internal/eventbus"
	logx "autokit/pkg/logx"
)

// Config holds the defaults applied to breakers the Manager creates.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// ComponentHealth is one entry of the Manager's health snapshot.
type ComponentHealth struct {
	State    string `json:"state"`
	Failures int    `json:"failures"`
	Errors   int    `json:"errors"`
}

// Manager is a registry of named circuit breakers plus per-component error
// tallies. Breakers are created on first reference; the registry only grows.
//
// All methods are safe for concurrent use.
type Manager struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	mu        sync.Mutex
	circuits  map[string]*Breaker
	errCounts map[string]int
}

func NewManager(cfg Config, log logx.Logger, bus eventbus.Bus) *Manager {
	return &Manager{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		circuits:  make(map[string]*Breaker),
		errCounts: make(map[string]int),
	}
}

// Circuit returns the named breaker, creating it with the Manager's defaults
// on first use.
func (m *Manager) Circuit(name string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.circuitLocked(name)
}

func (m *Manager) circuitLocked(name string) *Breaker {
	cb := m.circuits[name]
	if cb == nil {
		cb = NewBreaker(name, m.cfg.FailureThreshold, m.cfg.RecoveryTimeout)
		m.circuits[name] = cb
	}
	return cb
}

// RecordError increments the component's error tally and forwards a failure
// to its breaker.
func (m *Manager) RecordError(component string, err error) {
	m.mu.Lock()
	m.errCounts[component]++
	cb := m.circuitLocked(component)
	m.mu.Unlock()

	before := cb.State()
	cb.RecordFailure()
	after := cb.State()

	m.log.Debug("component error recorded",
		logx.String("component", component), logx.String("state", after.String()), logx.Err(err))
	if before != StateOpen && after == StateOpen {
		m.log.Warn("circuit opened",
			logx.String("component", component), logx.Int("failures", cb.Failures()))
		m.publish(eventbus.TopicCircuitOpened, component, after)
	}
}

// RecordSuccess forwards a success to the component's breaker.
func (m *Manager) RecordSuccess(component string) {
	cb := m.Circuit(component)

	before := cb.State()
	cb.RecordSuccess()
	after := cb.State()

	if before != StateClosed && after == StateClosed {
		m.log.Info("circuit closed", logx.String("component", component))
		m.publish(eventbus.TopicCircuitClosed, component, after)
	}
}

// CanExecute reports whether the component's breaker permits a call.
func (m *Manager) CanExecute(component string) bool {
	return m.Circuit(component).CanExecute()
}

// Health returns a snapshot of every breaker ever touched.
func (m *Manager) Health() map[string]ComponentHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ComponentHealth, len(m.circuits))
	for name, cb := range m.circuits {
		out[name] = ComponentHealth{
			State:    cb.State().String(),
			Failures: cb.Failures(),
			Errors:   m.errCounts[name],
		}
	}
	return out
}

// CircuitEvent is the event bus payload for breaker state transitions.
type CircuitEvent struct {
	Component string    `json:"component"`
	State     string    `json:"state"`
	At        time.Time `json:"at"`
}

func (m *Manager) publish(topic, component string, state State) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{
		Topic: topic,
		Time:  time.Now(),
		Data:  CircuitEvent{Component: component, State: state.String(), At: time.Now()},
	})
}
