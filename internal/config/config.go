// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config holds the controller's startup configuration.
//
// The configuration is read once at startup and treated as read-only
// afterwards; components receive the values they need, never the loader.
package config

import (
	"time"
)

// CurrentSchemaVersion is the schema version written by this build.
const CurrentSchemaVersion = "1.0"

// Defaults mirror the values the controller has always shipped with.
const (
	DefaultBridgeName     = "br0"
	DefaultBridgeAddress  = "192.168.1.10/24"
	DefaultListenAddr     = "0.0.0.0:5000"
	DefaultPollInterval   = 2 * time.Second
	DefaultCommandTimeout = 10 * time.Second
)

// Config is the root configuration structure.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty" yaml:"schema_version,omitempty"`
	LogLevel      string `hcl:"log_level,optional" json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogJSON       bool   `hcl:"log_json,optional" json:"log_json,omitempty" yaml:"log_json,omitempty"`

	Bridge     *BridgeConfig     `hcl:"bridge,block" json:"bridge,omitempty" yaml:"bridge,omitempty"`
	Interfaces *InterfacesConfig `hcl:"interfaces,block" json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Monitor    *MonitorConfig    `hcl:"monitor,block" json:"monitor,omitempty" yaml:"monitor,omitempty"`
	Commands   *CommandsConfig   `hcl:"commands,block" json:"commands,omitempty" yaml:"commands,omitempty"`
	API        *APIConfig        `hcl:"api,block" json:"api,omitempty" yaml:"api,omitempty"`
	TCDefaults *TCDefaults       `hcl:"tc_defaults,block" json:"tc_defaults,omitempty" yaml:"tc_defaults,omitempty"`
}

// BridgeConfig names the single managed bridge and the address it gets.
type BridgeConfig struct {
	Name    string `hcl:"name,optional" json:"name,omitempty" yaml:"name,omitempty"`
	Address string `hcl:"address,optional" json:"address,omitempty" yaml:"address,omitempty"`
}

// InterfacesConfig controls which host interfaces are offered for bridging.
type InterfacesConfig struct {
	// Excluded are exact interface names never listed.
	Excluded []string `hcl:"excluded,optional" json:"excluded,omitempty" yaml:"excluded,omitempty"`
	// ExcludedPrefixes hide whole families (bridges, veth pairs).
	ExcludedPrefixes []string `hcl:"excluded_prefixes,optional" json:"excluded_prefixes,omitempty" yaml:"excluded_prefixes,omitempty"`
}

// MonitorConfig controls the status push loop.
type MonitorConfig struct {
	Interval string `hcl:"interval,optional" json:"interval,omitempty" yaml:"interval,omitempty"`
}

// CommandsConfig controls external tool invocation.
type CommandsConfig struct {
	Timeout string `hcl:"timeout,optional" json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// APIConfig configures the HTTP listener.
type APIConfig struct {
	Listen  string `hcl:"listen,optional" json:"listen,omitempty" yaml:"listen,omitempty"`
	Metrics *bool  `hcl:"metrics,optional" json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// TCDefaults are suggested starting values for the traffic-control form.
// They are advisory: they are never applied unless a client submits them.
type TCDefaults struct {
	BandwidthMbit float64 `hcl:"bandwidth_mbit,optional" json:"bandwidth_mbit" yaml:"bandwidth_mbit"`
	DelayMs       float64 `hcl:"delay_ms,optional" json:"delay_ms" yaml:"delay_ms"`
	JitterMs      float64 `hcl:"jitter_ms,optional" json:"jitter_ms" yaml:"jitter_ms"`
	PacketLossPct float64 `hcl:"packet_loss_pct,optional" json:"packet_loss_pct" yaml:"packet_loss_pct"`
}

// Default returns a fully populated configuration.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every unset block and field.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Bridge == nil {
		c.Bridge = &BridgeConfig{}
	}
	if c.Bridge.Name == "" {
		c.Bridge.Name = DefaultBridgeName
	}
	if c.Bridge.Address == "" {
		c.Bridge.Address = DefaultBridgeAddress
	}

	if c.Interfaces == nil {
		c.Interfaces = &InterfacesConfig{}
	}
	if c.Interfaces.Excluded == nil {
		c.Interfaces.Excluded = []string{"lo", "docker0", "veth"}
	}
	if c.Interfaces.ExcludedPrefixes == nil {
		c.Interfaces.ExcludedPrefixes = []string{"br"}
	}

	if c.Monitor == nil {
		c.Monitor = &MonitorConfig{}
	}
	if c.Monitor.Interval == "" {
		c.Monitor.Interval = DefaultPollInterval.String()
	}

	if c.Commands == nil {
		c.Commands = &CommandsConfig{}
	}
	if c.Commands.Timeout == "" {
		c.Commands.Timeout = DefaultCommandTimeout.String()
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListenAddr
	}
	if c.API.Metrics == nil {
		enabled := true
		c.API.Metrics = &enabled
	}

	if c.TCDefaults == nil {
		c.TCDefaults = &TCDefaults{
			BandwidthMbit: 100,
			DelayMs:       50,
			JitterMs:      10,
			PacketLossPct: 1,
		}
	}
}

// PollInterval returns the monitor interval, falling back to the default
// when the configured value does not parse.
func (c *Config) PollInterval() time.Duration {
	if c.Monitor == nil {
		return DefaultPollInterval
	}
	return parseDurationOr(c.Monitor.Interval, DefaultPollInterval)
}

// CommandTimeout returns the per-command deadline.
func (c *Config) CommandTimeout() time.Duration {
	if c.Commands == nil {
		return DefaultCommandTimeout
	}
	return parseDurationOr(c.Commands.Timeout, DefaultCommandTimeout)
}

// MetricsEnabled reports whether /metrics is served.
func (c *Config) MetricsEnabled() bool {
	if c.API == nil || c.API.Metrics == nil {
		return true
	}
	return *c.API.Metrics
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
