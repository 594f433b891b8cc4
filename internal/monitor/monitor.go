// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package monitor tracks the latest crowd density reading for every
// monitored area and fans readings out to subscribers (the alert engine,
// the history collector, the streaming layer).
package monitor

import (
	"sync"
	"time"

	"yatra.is/crowdwatch/internal/config"
	"yatra.is/crowdwatch/internal/errors"
	"yatra.is/crowdwatch/internal/logging"
)

// Reading is one timestamped density measurement for an area. Density is
// percent-of-capacity utilization.
type Reading struct {
	AreaID    string    `json:"area_id"`
	Timestamp time.Time `json:"timestamp"`
	Density   float64   `json:"density"`
}

// recentCap bounds the per-area in-memory reading log kept for charting.
const recentCap = 720

// Monitor holds the static area registry and the latest reading per area.
type Monitor struct {
	mu     sync.RWMutex
	areas  map[string]config.Area
	order  []string
	latest map[string]Reading
	recent map[string][]Reading

	subMu   sync.RWMutex
	subs    map[int]func(Reading)
	nextSub int

	logger *logging.Logger
}

// New creates a monitor over the configured area registry.
func New(areas []config.Area, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.WithComponent("monitor")
	}
	byID := make(map[string]config.Area, len(areas))
	order := make([]string, 0, len(areas))
	for _, a := range areas {
		byID[a.ID] = a
		order = append(order, a.ID)
	}
	return &Monitor{
		areas:  byID,
		order:  order,
		latest: make(map[string]Reading),
		recent: make(map[string][]Reading),
		subs:   make(map[int]func(Reading)),
		logger: logger,
	}
}

// Record stores the reading as the area's latest value and synchronously
// notifies all subscribers. Readings for unknown areas are rejected with a
// not-found error and never reach subscribers.
func (m *Monitor) Record(r Reading) error {
	m.mu.Lock()
	if _, ok := m.areas[r.AreaID]; !ok {
		m.mu.Unlock()
		return errors.Errorf(errors.KindNotFound, "unknown area: %s", r.AreaID)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	m.latest[r.AreaID] = r

	log := append(m.recent[r.AreaID], r)
	if len(log) > recentCap {
		log = log[len(log)-recentCap:]
	}
	m.recent[r.AreaID] = log
	m.mu.Unlock()

	// Subscribers run outside the state lock so they can call back into the
	// monitor. The subscriber list snapshot keeps delivery order stable.
	m.subMu.RLock()
	callbacks := make([]func(Reading), 0, len(m.subs))
	for _, fn := range m.subs {
		callbacks = append(callbacks, fn)
	}
	m.subMu.RUnlock()

	for _, fn := range callbacks {
		fn(r)
	}
	return nil
}

// Latest returns the most recent reading for an area.
func (m *Monitor) Latest(areaID string) (Reading, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.latest[areaID]
	return r, ok
}

// Snapshot returns the latest reading of every area that has reported.
func (m *Monitor) Snapshot() map[string]Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Reading, len(m.latest))
	for id, r := range m.latest {
		out[id] = r
	}
	return out
}

// Recent returns up to limit of the area's most recent readings, oldest first.
func (m *Monitor) Recent(areaID string, limit int) []Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.recent[areaID]
	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}
	out := make([]Reading, limit)
	copy(out, log[len(log)-limit:])
	return out
}

// Areas returns the static registry in configuration order.
func (m *Monitor) Areas() []config.Area {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]config.Area, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.areas[id])
	}
	return out
}

// Area returns one area from the registry.
func (m *Monitor) Area(id string) (config.Area, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.areas[id]
	return a, ok
}

// Subscribe registers a callback invoked for every accepted reading and
// returns a subscription id for Unsubscribe.
func (m *Monitor) Subscribe(fn func(Reading)) int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	return id
}

// Unsubscribe removes a subscription.
func (m *Monitor) Unsubscribe(id int) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	delete(m.subs, id)
}
