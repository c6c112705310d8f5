// Package resilience provides fault-tolerance primitives for unreliable
// dependencies: a per-component circuit breaker registry, a bounded retry
// wrapper with exponential backoff, and a heuristic error classifier.
//
// The pieces compose but do not require each other. A typical caller checks
// Manager.CanExecute before an operation, wraps the operation in Retry, and
// reports the outcome with Manager.RecordSuccess or Manager.RecordError.
// Retry never wraps the operation's failure: after attempts are exhausted the
// caller sees the original error, so a circuit-open rejection (ErrCircuitOpen)
// is always distinguishable from the dependency's own failure.
package resilience
