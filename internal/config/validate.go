package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateAdmission(); err != nil {
		return err
	}
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validatePackaging(); err != nil {
		return err
	}
	if err := c.validatePadding(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Limits.MaxSegments <= 0 {
		return errors.New("limits.max_segments must be positive")
	}
	if c.Limits.MaxFileSizeBytes <= 0 {
		return errors.New("limits.max_file_size_bytes must be positive")
	}
	return nil
}

func (c *Config) validateAdmission() error {
	if err := ensurePositiveMap(map[string]int{
		"admission.rate_limit_window_ms":    c.Admission.RateLimitWindowMs,
		"admission.rate_limit_max_requests": c.Admission.RateLimitMaxRequests,
		"admission.max_active_jobs":         c.Admission.MaxActiveJobs,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateExecutor() error {
	if c.Executor.Concurrency <= 0 {
		return errors.New("executor.concurrency must be positive")
	}
	if c.Executor.Retries < 0 {
		return errors.New("executor.retries must not be negative")
	}
	if c.Executor.SegmentTimeoutSeconds <= 0 {
		return errors.New("executor.segment_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePackaging() error {
	if c.Packaging.PerFileThreshold < 2 {
		return errors.New("packaging.per_file_threshold must be at least 2")
	}
	return nil
}

func (c *Config) validatePadding() error {
	if c.Padding.StartSeconds < 0 {
		return errors.New("padding.start_seconds must not be negative")
	}
	if c.Padding.EndSeconds < 0 {
		return errors.New("padding.end_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
