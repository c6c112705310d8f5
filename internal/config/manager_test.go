package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: debug
  console: true
scheduler:
  poll_interval: 25ms
resilience:
  failure_threshold: 3
  recovery_timeout: 1s
  retry:
    max_retries: 2
    base_delay: 100ms
journal:
  driver: file
  path: ./journal
  retention: 24h
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("logging.level = %q", cfg.Logging.Level)
	}
	if cfg.Scheduler.PollInterval != "25ms" {
		t.Fatalf("scheduler.poll_interval = %q", cfg.Scheduler.PollInterval)
	}
	if cfg.Resilience.FailureThreshold != 3 {
		t.Fatalf("resilience.failure_threshold = %d", cfg.Resilience.FailureThreshold)
	}
	if cfg.Journal == nil || cfg.Journal.Driver != "file" {
		t.Fatalf("journal = %+v", cfg.Journal)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned a different config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.json", `{"logging":{"console":true},"bogus":1}`)
	m := NewManager(path)
	if _, err := m.Parse(); err == nil {
		t.Fatalf("expected unknown-field error")
	}
}

func TestValidateRejectsBadDurations(t *testing.T) {
	cfg := &Config{}
	cfg.Scheduler.PollInterval = "soon"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected invalid duration error")
	}

	cfg = &Config{}
	cfg.Journal = &JournalConfig{Driver: "postgres"}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 42*time.Millisecond)
	if err != nil || d != 42*time.Millisecond {
		t.Fatalf("got %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "1s", 42*time.Millisecond)
	if err != nil || d != time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("expected negative duration rejection")
	}
}
