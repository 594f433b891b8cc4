// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config provides HCL configuration handling for the crowdwatch
// service: the static monitored-area registry, server settings, API keys,
// default thresholds, and the ambient subsystems (audit, feed, logging).
package config

import (
	"yatra.is/crowdwatch/internal/logging"
)

// Config is the root of the crowdwatch.hcl configuration file.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	Server     *ServerConfig    `hcl:"server,block" json:"server,omitempty"`
	Areas      []Area           `hcl:"area,block" json:"areas"`
	Thresholds *ThresholdsBlock `hcl:"thresholds,block" json:"thresholds,omitempty"`
	APIKeys    []APIKey         `hcl:"api_key,block" json:"api_keys,omitempty"`
	RateLimit  *RateLimitConfig `hcl:"rate_limit,block" json:"rate_limit,omitempty"`
	Audit      *AuditConfig     `hcl:"audit,block" json:"audit,omitempty"`
	History    *HistoryConfig   `hcl:"history,block" json:"history,omitempty"`
	Feed       *FeedConfig      `hcl:"feed,block" json:"feed,omitempty"`
	Logging    *LoggingConfig   `hcl:"logging,block" json:"logging,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	ListenAddr string `hcl:"listen_addr,optional" json:"listen_addr,omitempty"`

	// Timeouts are Go duration strings ("15s", "1m").
	ReadTimeout       string `hcl:"read_timeout,optional" json:"read_timeout,omitempty"`
	ReadHeaderTimeout string `hcl:"read_header_timeout,optional" json:"read_header_timeout,omitempty"`
	WriteTimeout      string `hcl:"write_timeout,optional" json:"write_timeout,omitempty"`
	IdleTimeout       string `hcl:"idle_timeout,optional" json:"idle_timeout,omitempty"`

	MaxBodyBytes int64 `hcl:"max_body_bytes,optional" json:"max_body_bytes,omitempty"`

	// RequireAuth disables all permission checks when false. Intended for
	// local development only.
	RequireAuth *bool `hcl:"require_auth,optional" json:"require_auth,omitempty"`
}

// Area describes one monitored area of the pilgrimage site. The registry is
// static configuration: read-only at runtime, used to resolve adjacency for
// emergency expansion.
type Area struct {
	ID          string   `hcl:"id,label" json:"id"`
	Name        string   `hcl:"name" json:"name"`
	Type        string   `hcl:"type,optional" json:"type,omitempty"` // "gate", "hall", "ghat", "corridor", "exit"
	Description string   `hcl:"description,optional" json:"description,omitempty"`
	Capacity    int      `hcl:"capacity" json:"capacity"`
	Latitude    float64  `hcl:"latitude,optional" json:"latitude,omitempty"`
	Longitude   float64  `hcl:"longitude,optional" json:"longitude,omitempty"`
	Adjacent    []string `hcl:"adjacent,optional" json:"adjacent,omitempty"`
}

// ThresholdsBlock sets the system default thresholds applied to any area
// without a saved configuration. Values are percent-of-capacity utilization.
type ThresholdsBlock struct {
	Warning   float64 `hcl:"warning,optional" json:"warning"`
	Critical  float64 `hcl:"critical,optional" json:"critical"`
	Emergency float64 `hcl:"emergency,optional" json:"emergency"`
}

// APIKey declares one API key and the permissions it carries.
type APIKey struct {
	Name        string   `hcl:"name,label" json:"name"`
	Key         string   `hcl:"key" json:"-"`
	Permissions []string `hcl:"permissions" json:"permissions"`
}

// RateLimitConfig configures the fixed-window request limiter.
type RateLimitConfig struct {
	// ConfigRequestsPerMinute limits mutating config calls per client IP.
	ConfigRequestsPerMinute int `hcl:"config_requests_per_minute,optional" json:"config_requests_per_minute,omitempty"`

	// StreamConnectionsPerMinute limits SSE/WS connection attempts per client IP.
	StreamConnectionsPerMinute int `hcl:"stream_connections_per_minute,optional" json:"stream_connections_per_minute,omitempty"`
}

// AuditConfig configures the audit logging subsystem.
type AuditConfig struct {
	// Enabled activates audit logging to SQLite.
	Enabled bool `hcl:"enabled,optional" json:"enabled"`

	// RetentionDays is the number of days to retain audit events.
	// Default: 90 days.
	RetentionDays int `hcl:"retention_days,optional" json:"retention_days,omitempty"`

	// DatabasePath overrides the default audit database location.
	DatabasePath string `hcl:"database_path,optional" json:"database_path,omitempty"`
}

// HistoryConfig configures density reading persistence for charting.
type HistoryConfig struct {
	Enabled      bool   `hcl:"enabled,optional" json:"enabled"`
	DatabasePath string `hcl:"database_path,optional" json:"database_path,omitempty"`

	// FlushInterval is a Go duration string. Default: 1m.
	FlushInterval string `hcl:"flush_interval,optional" json:"flush_interval,omitempty"`

	// RetentionDays bounds the stored history. Default: 7 days.
	RetentionDays int `hcl:"retention_days,optional" json:"retention_days,omitempty"`
}

// FeedConfig configures the simulated density feed.
type FeedConfig struct {
	Enabled bool `hcl:"enabled,optional" json:"enabled"`

	// Interval between generated readings per area. Default: 5s.
	Interval string `hcl:"interval,optional" json:"interval,omitempty"`

	// ScenarioFile optionally points to a YAML replay script instead of the
	// random-walk generator.
	ScenarioFile string `hcl:"scenario_file,optional" json:"scenario_file,omitempty"`

	// Seed fixes the generator for reproducible runs. 0 means time-seeded.
	Seed int64 `hcl:"seed,optional" json:"seed,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string                `hcl:"level,optional" json:"level,omitempty"`
	Format string                `hcl:"format,optional" json:"format,omitempty"`
	Syslog *logging.SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty"`
}

// Permission names understood by the API layer.
const (
	PermViewOnly            = "view_only"
	PermConfigureThresholds = "configure_thresholds"
	PermAdmin               = "admin"
)

// DefaultThresholds are applied when no thresholds block is configured.
func DefaultThresholds() ThresholdsBlock {
	return ThresholdsBlock{
		Warning:   50,
		Critical:  75,
		Emergency: 90,
	}
}

// RequireAuthEnabled reports whether API auth is enforced. Defaults to true
// when unset.
func (c *Config) RequireAuthEnabled() bool {
	if c.Server == nil || c.Server.RequireAuth == nil {
		return true
	}
	return *c.Server.RequireAuth
}

// AreaByID returns the configured area, or nil when unknown.
func (c *Config) AreaByID(id string) *Area {
	for i := range c.Areas {
		if c.Areas[i].ID == id {
			return &c.Areas[i]
		}
	}
	return nil
}
