package resilience

import "strings"

// Severity ranks how serious a classified error is.
type Severity int

const (
	// SeverityLow: safe to retry quietly.
	SeverityLow Severity = iota
	// SeverityMedium: retryable, worth surfacing.
	SeverityMedium
	// SeverityHigh: stop the current operation.
	SeverityHigh
	// SeverityCritical: stop everything.
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ErrorContext is the result of classifying one error. Produced fresh per
// Classify call, never persisted.
type ErrorContext struct {
	Err         error
	Severity    Severity
	Recoverable bool
	RetryCount  int
	MaxRetries  int
	Action      string
	Suggestion  string
}

// errorPattern is one row of the classification table. Patterns are tested
// in slice order against the lowercased error message; first match wins.
type errorPattern struct {
	substr      string
	severity    Severity
	recoverable bool
	suggestion  string
}

var errorPatterns = []errorPattern{
	{"timeout", SeverityMedium, true, "increase timeout or retry"},
	{"connection", SeverityMedium, true, "check network, retry"},
	{"permission", SeverityHigh, false, "request elevated access"},
	{"not found", SeverityLow, true, "retry with different selector"},
	{"out of memory", SeverityCritical, false, "close applications"},
}

// Classify maps an error's message to a severity, recoverability and a
// suggested remedy. It is a best-effort substring heuristic, not exhaustive;
// an unmatched error defaults to medium severity and recoverable.
//
// action is an optional label naming the operation that failed; it is carried
// through unchanged.
func Classify(err error, action string) ErrorContext {
	msg := strings.ToLower(err.Error())

	for _, p := range errorPatterns {
		if strings.Contains(msg, p.substr) {
			maxRetries := 0
			if p.recoverable {
				maxRetries = 3
			}
			return ErrorContext{
				Err:         err,
				Severity:    p.severity,
				Recoverable: p.recoverable,
				MaxRetries:  maxRetries,
				Action:      action,
				Suggestion:  p.suggestion,
			}
		}
	}

	return ErrorContext{
		Err:         err,
		Severity:    SeverityMedium,
		Recoverable: true,
		MaxRetries:  3,
		Action:      action,
		Suggestion:  "retry operation",
	}
}
