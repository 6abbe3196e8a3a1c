// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"strings"
	"time"

	"grimm.is/tcbridge/internal/validation"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var logLevels = []string{"debug", "info", "warn", "warning", "error"}

// Validate validates the entire configuration. Call ApplyDefaults first;
// missing blocks are reported as errors.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field string, err error) {
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		}
	}

	add("log_level", validation.ValidateAllowlist(strings.ToLower(c.LogLevel), logLevels))

	if c.Bridge == nil {
		errs = append(errs, ValidationError{Field: "bridge", Message: "block is required"})
	} else {
		add("bridge.name", validation.ValidateInterfaceName(c.Bridge.Name))
		add("bridge.address", validation.ValidateCIDR(c.Bridge.Address))
	}

	if c.Interfaces != nil {
		for i, name := range c.Interfaces.Excluded {
			if strings.TrimSpace(name) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("interfaces.excluded[%d]", i),
					Message: "must not be empty",
				})
			}
		}
		for i, prefix := range c.Interfaces.ExcludedPrefixes {
			if strings.TrimSpace(prefix) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("interfaces.excluded_prefixes[%d]", i),
					Message: "must not be empty",
				})
			}
		}
	}

	if c.Monitor != nil {
		add("monitor.interval", validateDuration(c.Monitor.Interval))
	}
	if c.Commands != nil {
		add("commands.timeout", validateDuration(c.Commands.Timeout))
	}

	if c.API == nil {
		errs = append(errs, ValidationError{Field: "api", Message: "block is required"})
	} else {
		add("api.listen", validation.ValidateListenAddr(c.API.Listen))
	}

	if d := c.TCDefaults; d != nil {
		if d.BandwidthMbit < 0 {
			errs = append(errs, ValidationError{Field: "tc_defaults.bandwidth_mbit", Message: "must not be negative"})
		}
		if d.DelayMs < 0 {
			errs = append(errs, ValidationError{Field: "tc_defaults.delay_ms", Message: "must not be negative"})
		}
		if d.JitterMs < 0 {
			errs = append(errs, ValidationError{Field: "tc_defaults.jitter_ms", Message: "must not be negative"})
		}
		if d.PacketLossPct < 0 || d.PacketLossPct > 100 {
			errs = append(errs, ValidationError{Field: "tc_defaults.packet_loss_pct", Message: "must be between 0 and 100"})
		}
	}

	return errs
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", s)
	}
	return nil
}
