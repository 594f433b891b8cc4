// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package threshold manages per-area threshold configuration: the base
// warning/critical/emergency levels, optional time-of-day override profiles,
// and the audit trail of every change. Thresholds are percent-of-capacity
// utilization values and must be strictly ascending.
package threshold

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"yatra.is/crowdwatch/internal/audit"
	"yatra.is/crowdwatch/internal/config"
	"yatra.is/crowdwatch/internal/errors"
	"yatra.is/crowdwatch/internal/logging"
)

// TimeProfile overrides the base thresholds during a same-day wall-clock
// window [Start, End). Times are "HH:MM" strings; End may be "24:00" to
// cover through midnight.
type TimeProfile struct {
	Name      string  `json:"name,omitempty"`
	Start     string  `json:"start"`
	End       string  `json:"end"`
	Warning   float64 `json:"warning"`
	Critical  float64 `json:"critical"`
	Emergency float64 `json:"emergency"`
}

// Config is one area's threshold configuration.
type Config struct {
	AreaID    string        `json:"area_id"`
	Warning   float64       `json:"warning"`
	Critical  float64       `json:"critical"`
	Emergency float64       `json:"emergency"`
	Profiles  []TimeProfile `json:"profiles,omitempty"`
	Version   int           `json:"version"`
	UpdatedAt time.Time     `json:"updated_at,omitzero"`
	Default   bool          `json:"default,omitempty"`
}

// Effective is the threshold set in force at a given instant, after applying
// any matching time profile.
type Effective struct {
	Warning   float64 `json:"warning"`
	Critical  float64 `json:"critical"`
	Emergency float64 `json:"emergency"`
	Profile   string  `json:"profile,omitempty"`
}

// Manager stores per-area configurations and resolves effective thresholds.
// Permission checks belong to the API layer; the manager only validates.
type Manager struct {
	mu       sync.RWMutex
	configs  map[string]*Config
	defaults config.ThresholdsBlock
	areas    map[string]bool
	audit    *audit.Logger
	logger   *logging.Logger
}

// NewManager creates a manager for the given area registry.
func NewManager(areas []config.Area, defaults config.ThresholdsBlock, auditLog *audit.Logger, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.WithComponent("threshold")
	}
	known := make(map[string]bool, len(areas))
	for _, a := range areas {
		known[a.ID] = true
	}
	return &Manager{
		configs:  make(map[string]*Config),
		defaults: defaults,
		areas:    known,
		audit:    auditLog,
		logger:   logger,
	}
}

// Get returns the area's current configuration, falling back to the system
// default. Unknown areas return KindNotFound.
func (m *Manager) Get(areaID string) (Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.areas[areaID] {
		return Config{}, errors.Errorf(errors.KindNotFound, "unknown area: %s", areaID)
	}
	if cfg, ok := m.configs[areaID]; ok {
		return cfg.clone(), nil
	}
	return m.defaultConfig(areaID), nil
}

// All returns the current configuration of every area, defaults included.
func (m *Manager) All() []Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Config, 0, len(m.areas))
	for id := range m.areas {
		if cfg, ok := m.configs[id]; ok {
			out = append(out, cfg.clone())
		} else {
			out = append(out, m.defaultConfig(id))
		}
	}
	return out
}

// EffectiveAt resolves the thresholds in force for an area at the given
// instant. Profiles are checked in list order; validation guarantees at most
// one window matches.
func (m *Manager) EffectiveAt(areaID string, at time.Time) (Effective, error) {
	cfg, err := m.Get(areaID)
	if err != nil {
		return Effective{}, err
	}

	minute := at.Hour()*60 + at.Minute()
	for _, p := range cfg.Profiles {
		start, _ := parseClock(p.Start)
		end, _ := parseClock(p.End)
		if minute >= start && minute < end {
			return Effective{Warning: p.Warning, Critical: p.Critical, Emergency: p.Emergency, Profile: p.Name}, nil
		}
	}
	return Effective{Warning: cfg.Warning, Critical: cfg.Critical, Emergency: cfg.Emergency}, nil
}

// Save validates and stores a new configuration for cfg.AreaID, bumping the
// version and appending an audit entry. Invalid configurations are rejected,
// never clamped.
func (m *Manager) Save(cfg Config, adminID, reason string) (Config, error) {
	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.areas[cfg.AreaID] {
		return Config{}, errors.Errorf(errors.KindNotFound, "unknown area: %s", cfg.AreaID)
	}

	var prev Config
	if existing, ok := m.configs[cfg.AreaID]; ok {
		prev = existing.clone()
		cfg.Version = existing.Version + 1
	} else {
		prev = m.defaultConfig(cfg.AreaID)
		cfg.Version = 1
	}
	cfg.UpdatedAt = time.Now()
	cfg.Default = false

	stored := cfg.clone()
	m.configs[cfg.AreaID] = &stored

	if m.audit != nil {
		m.audit.Record(audit.Entry{
			EventType: audit.EventConfigUpdate,
			AdminID:   adminID,
			AreaID:    cfg.AreaID,
			Reason:    reason,
			Previous:  prev,
			New:       cfg,
			Success:   true,
		})
	}
	m.logger.Info("Threshold config saved", "area", cfg.AreaID, "version", cfg.Version, "admin", adminID)
	return cfg, nil
}

// Delete removes an area's custom configuration, reverting it to the system
// default. Deleting an area that has no custom configuration is a not-found.
func (m *Manager) Delete(areaID, adminID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.areas[areaID] {
		return errors.Errorf(errors.KindNotFound, "unknown area: %s", areaID)
	}
	existing, ok := m.configs[areaID]
	if !ok {
		return errors.Errorf(errors.KindNotFound, "area %s has no custom threshold config", areaID)
	}

	prev := existing.clone()
	delete(m.configs, areaID)

	if m.audit != nil {
		m.audit.Record(audit.Entry{
			EventType: audit.EventConfigDelete,
			AdminID:   adminID,
			AreaID:    areaID,
			Reason:    reason,
			Previous:  prev,
			New:       m.defaultConfig(areaID),
			Success:   true,
		})
	}
	m.logger.Info("Threshold config deleted", "area", areaID, "admin", adminID)
	return nil
}

func (m *Manager) defaultConfig(areaID string) Config {
	return Config{
		AreaID:    areaID,
		Warning:   m.defaults.Warning,
		Critical:  m.defaults.Critical,
		Emergency: m.defaults.Emergency,
		Default:   true,
	}
}

func (c *Config) clone() Config {
	out := *c
	if len(c.Profiles) > 0 {
		out.Profiles = make([]TimeProfile, len(c.Profiles))
		copy(out.Profiles, c.Profiles)
	}
	return out
}

func validateConfig(cfg *Config) error {
	if cfg.AreaID == "" {
		return errors.New(errors.KindValidation, "area_id is required")
	}
	if err := validateAscending(cfg.Warning, cfg.Critical, cfg.Emergency, "base"); err != nil {
		return err
	}

	type window struct{ start, end int }
	windows := make([]window, 0, len(cfg.Profiles))
	for i, p := range cfg.Profiles {
		start, err := parseClock(p.Start)
		if err != nil {
			return errors.Errorf(errors.KindValidation, "profile %d: invalid start time %q", i, p.Start)
		}
		end, err := parseClock(p.End)
		if err != nil {
			return errors.Errorf(errors.KindValidation, "profile %d: invalid end time %q", i, p.End)
		}
		if start >= end {
			return errors.Errorf(errors.KindValidation, "profile %d: start %s must be before end %s", i, p.Start, p.End)
		}
		label := p.Name
		if label == "" {
			label = fmt.Sprintf("profile %d", i)
		}
		if err := validateAscending(p.Warning, p.Critical, p.Emergency, label); err != nil {
			return err
		}
		for _, w := range windows {
			if start < w.end && w.start < end {
				return errors.Errorf(errors.KindValidation, "profile %d: time window overlaps an earlier profile", i)
			}
		}
		windows = append(windows, window{start, end})
	}
	return nil
}

func validateAscending(warning, critical, emergency float64, label string) error {
	if !(warning < critical && critical < emergency) {
		return errors.Errorf(errors.KindValidation,
			"%s thresholds must be strictly ascending: warning %.1f < critical %.1f < emergency %.1f",
			label, warning, critical, emergency)
	}
	return nil
}

// parseClock converts "HH:MM" to minutes since midnight. "24:00" is valid as
// an exclusive window end covering the last minute of the day.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("malformed time: %s", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("malformed time: %s", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("malformed time: %s", s)
	}
	if h == 24 && m == 0 {
		return 24 * 60, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("out of range: %s", s)
	}
	return h*60 + m, nil
}
