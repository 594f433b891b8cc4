// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"yatra.is/crowdwatch/internal/errors"
)

// LoadFile reads, decodes and validates an HCL configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to read config file")
	}
	return LoadBytes(path, data)
}

// LoadBytes decodes and validates configuration from raw HCL bytes. The
// filename is used only for diagnostics.
func LoadBytes(filename string, data []byte) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, data, nil, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to decode config")
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8321"
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20 // 1MB, config payloads are small
	}
	if cfg.Thresholds == nil {
		def := DefaultThresholds()
		cfg.Thresholds = &def
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = &RateLimitConfig{}
	}
	if cfg.RateLimit.ConfigRequestsPerMinute == 0 {
		cfg.RateLimit.ConfigRequestsPerMinute = 30
	}
	if cfg.RateLimit.StreamConnectionsPerMinute == 0 {
		cfg.RateLimit.StreamConnectionsPerMinute = 10
	}
	if cfg.Audit == nil {
		cfg.Audit = &AuditConfig{Enabled: true}
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 90
	}
	if cfg.History == nil {
		cfg.History = &HistoryConfig{Enabled: true}
	}
	if cfg.History.FlushInterval == "" {
		cfg.History.FlushInterval = "1m"
	}
	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = 7
	}
	if cfg.Feed == nil {
		cfg.Feed = &FeedConfig{Enabled: true}
	}
	if cfg.Feed.Interval == "" {
		cfg.Feed.Interval = "5s"
	}
	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Duration parses a config duration string, returning fallback for empty or
// malformed values.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
