package app

import (
	"autokit/internal/config"
	"autokit/internal/journal"
	"autokit/internal/keepalive"
	"autokit/internal/resilience"
	"autokit/internal/scheduler"
	logx "autokit/pkg/logx"
)

// Conversions from the string-duration config schema to the typed component
// configs. Validation already ran (config.Validate), so parse errors here are
// defensive only.

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func schedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, 0)
	if err != nil {
		return scheduler.Config{}, err
	}
	stop, err := config.ParseDurationOrDefault("scheduler.stop_timeout", cfg.Scheduler.StopTimeout, 0)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{PollInterval: poll, StopTimeout: stop}, nil
}

func resilienceConfig(cfg *config.Config) (resilience.Config, error) {
	recovery, err := config.ParseDurationOrDefault("resilience.recovery_timeout", cfg.Resilience.RecoveryTimeout, 0)
	if err != nil {
		return resilience.Config{}, err
	}
	return resilience.Config{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		RecoveryTimeout:  recovery,
	}, nil
}

// RetryConfig builds the daemon-wide retry policy from configuration.
func RetryConfig(cfg *config.Config) (resilience.RetryConfig, error) {
	base, err := config.ParseDurationOrDefault("resilience.retry.base_delay", cfg.Resilience.Retry.BaseDelay, 0)
	if err != nil {
		return resilience.RetryConfig{}, err
	}
	maxD, err := config.ParseDurationOrDefault("resilience.retry.max_delay", cfg.Resilience.Retry.MaxDelay, 0)
	if err != nil {
		return resilience.RetryConfig{}, err
	}
	return resilience.RetryConfig{
		MaxRetries:  cfg.Resilience.Retry.MaxRetries,
		BaseDelay:   base,
		MaxDelay:    maxD,
		Exponential: cfg.Resilience.Retry.Exponential,
		Jitter:      cfg.Resilience.Retry.Jitter,
	}, nil
}

// KeepaliveConfig builds the connection-hardening config. Callers owning a
// long-lived connection pass it to keepalive.NewReconnector / NewPinger.
func KeepaliveConfig(cfg *config.Config) (keepalive.Config, error) {
	if cfg.Keepalive == nil {
		return keepalive.Config{}, nil
	}
	kc := cfg.Keepalive
	timeout, err := config.ParseDurationOrDefault("keepalive.timeout", kc.Timeout, 0)
	if err != nil {
		return keepalive.Config{}, err
	}
	ping, err := config.ParseDurationOrDefault("keepalive.ping_interval", kc.PingInterval, 0)
	if err != nil {
		return keepalive.Config{}, err
	}
	base, err := config.ParseDurationOrDefault("keepalive.base_backoff", kc.BaseBackoff, 0)
	if err != nil {
		return keepalive.Config{}, err
	}
	maxB, err := config.ParseDurationOrDefault("keepalive.max_backoff", kc.MaxBackoff, 0)
	if err != nil {
		return keepalive.Config{}, err
	}
	return keepalive.Config{
		Timeout:        timeout,
		PingInterval:   ping,
		MaxReconnects:  kc.MaxAttempts,
		InitialBackoff: base,
		MaxBackoff:     maxB,
	}, nil
}

func journalConfig(cfg *config.Config) journal.Config {
	if cfg.Journal == nil {
		return journal.Config{}
	}
	jc := cfg.Journal
	busy, _ := config.ParseDurationOrDefault("journal.busy_timeout", jc.BusyTimeout, 0)
	retention, _ := config.ParseDurationOrDefault("journal.retention", jc.Retention, 0)
	return journal.Config{
		Driver:      jc.Driver,
		Path:        jc.Path,
		BusyTimeout: busy,
		Retention:   retention,
	}
}
