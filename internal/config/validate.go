package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateHistory()
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.PollIntervalMS <= 0 {
		return errors.New("scheduler.poll_interval_ms must be positive")
	}
	if c.Scheduler.ProgressBuffer <= 0 {
		return errors.New("scheduler.progress_buffer must be positive")
	}
	if c.Scheduler.StallTimeoutSeconds < 0 {
		return errors.New("scheduler.stall_timeout_seconds must be zero or positive")
	}
	if c.Scheduler.ConversionTimeoutSeconds < 0 {
		return errors.New("scheduler.conversion_timeout_seconds must be zero or positive")
	}
	switch c.Scheduler.FastTrack {
	case "first", "idle":
	default:
		return fmt.Errorf("scheduler.fast_track: unsupported value %q (want first or idle)", c.Scheduler.FastTrack)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateHistory() error {
	switch c.History.Backend {
	case HistoryBackendJSON, HistoryBackendSQLite:
	default:
		return fmt.Errorf("history.backend: unsupported value %q", c.History.Backend)
	}
	if c.History.Limit < 0 {
		return errors.New("history.limit must not be negative")
	}
	return nil
}
