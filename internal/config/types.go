package config

// Config is the root configuration for the autokit daemon and its services.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Unknown fields are rejected (strict decode) for both JSON and YAML files.
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Resilience ResilienceConfig `json:"resilience"`

	// Keepalive tunes the timeout/reconnect helpers. Optional.
	Keepalive *KeepaliveConfig `json:"keepalive,omitempty"`

	// Journal configures the run-history journal. If omitted, no journal is kept.
	Journal *JournalConfig `json:"journal,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level,omitempty"`
	Console bool           `json:"console"`
	File    LogFileConfig  `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls the in-process task scheduler.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "50ms"
//   - stop_timeout: "2s"
type SchedulerConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`
	StopTimeout  string `json:"stop_timeout,omitempty"`
}

// ResilienceConfig controls circuit breaker defaults and the retry policy
// used by the daemon's own housekeeping operations.
//
// Defaults:
//   - failure_threshold: 5
//   - recovery_timeout: "30s"
type ResilienceConfig struct {
	FailureThreshold int    `json:"failure_threshold,omitempty"`
	RecoveryTimeout  string `json:"recovery_timeout,omitempty"`

	Retry RetryConfig `json:"retry,omitempty"`
}

// RetryConfig mirrors resilience.RetryConfig with string durations.
//
// Exponential and Jitter are pointers so "omitted" (default true) can be told
// apart from an explicit false.
type RetryConfig struct {
	MaxRetries  int    `json:"max_retries,omitempty"`
	BaseDelay   string `json:"base_delay,omitempty"`
	MaxDelay    string `json:"max_delay,omitempty"`
	Exponential *bool  `json:"exponential,omitempty"`
	Jitter      *bool  `json:"jitter,omitempty"`
}

type KeepaliveConfig struct {
	Timeout      string `json:"timeout,omitempty"`
	PingInterval string `json:"ping_interval,omitempty"`
	MaxAttempts  int    `json:"max_attempts,omitempty"`
	BaseBackoff  string `json:"base_backoff,omitempty"`
	MaxBackoff   string `json:"max_backoff,omitempty"`
}

// JournalConfig configures run-history persistence.
//
// Driver values:
//   - "file": dependency-free JSONL backend
//   - "sqlite": SQLite database file (requires build tag "sqlite")
//   - "" or "none": journal disabled
type JournalConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	Retention   string `json:"retention,omitempty"`    // prune records older than this
}
