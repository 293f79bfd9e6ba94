package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return fmt.Errorf("paths.api_bind must not be empty")
	}
	if c.Workflow.DefaultMaxAttempts < 1 {
		return fmt.Errorf("workflow.default_max_attempts must be at least 1, got %d", c.Workflow.DefaultMaxAttempts)
	}
	if c.Workflow.StaleEscalationMinutes < 0 {
		return fmt.Errorf("workflow.stale_escalation_minutes must not be negative")
	}
	if c.Workflow.SweepIntervalSeconds < 0 {
		return fmt.Errorf("workflow.sweep_interval_seconds must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
