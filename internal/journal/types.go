package journal

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the journal.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + compaction)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Retention   time.Duration // records older than this are pruned; 0 means keep forever
}

// RunRecord is one scheduler fire.
// Keep it compact and schema-stable.
type RunRecord struct {
	At       time.Time `json:"at"`
	TaskID   int64     `json:"task_id"`
	TaskName string    `json:"task"`
	Kind     string    `json:"kind"`
	Duration int64     `json:"duration_ms"`
	RunCount int       `json:"run_count"`
	Error    string    `json:"error,omitempty"`
}
