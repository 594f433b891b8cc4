// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package emergency tracks the single process-wide emergency mode flag. An
// activation records its trigger (manual admin action or automatic
// escalation by the alert engine), the triggering area, and the set of
// affected areas computed as the breadth-first closure of the trigger area
// over the adjacency graph.
package emergency

import (
	"sort"
	"sync"
	"time"

	"yatra.is/crowdwatch/internal/audit"
	"yatra.is/crowdwatch/internal/config"
	"yatra.is/crowdwatch/internal/errors"
	"yatra.is/crowdwatch/internal/logging"
)

// Trigger identifies how emergency mode was activated.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerAutomatic Trigger = "automatic"
)

// State is a snapshot of an active emergency episode.
type State struct {
	Active        bool      `json:"active"`
	ActivatedAt   time.Time `json:"activated_at"`
	Trigger       Trigger   `json:"trigger"`
	AdminID       string    `json:"admin_id,omitempty"`
	TriggerAreaID string    `json:"trigger_area_id"`
	AffectedAreas []string  `json:"affected_areas"`
}

// Manager owns the emergency singleton.
type Manager struct {
	mu        sync.RWMutex
	adjacency map[string][]string
	state     *State

	subMu   sync.RWMutex
	subs    map[int]func(*State)
	nextSub int

	audit  *audit.Logger
	logger *logging.Logger
}

// NewManager builds a manager over the configured area adjacency graph.
func NewManager(areas []config.Area, auditLog *audit.Logger, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.WithComponent("emergency")
	}
	adj := make(map[string][]string, len(areas))
	for _, a := range areas {
		adj[a.ID] = a.Adjacent
	}
	return &Manager{
		adjacency: adj,
		subs:      make(map[int]func(*State)),
		audit:     auditLog,
		logger:    logger,
	}
}

// Activate turns emergency mode on. Activating while already active is a
// conflict surfaced to the caller, not a silent no-op. The affected set is
// the full adjacency closure of the trigger area; traversal is deliberately
// uncapped, so a fully connected graph marks every area affected.
func (m *Manager) Activate(areaID string, trigger Trigger, adminID string) (*State, error) {
	m.mu.Lock()
	if m.state != nil {
		m.mu.Unlock()
		return nil, errors.Errorf(errors.KindConflict, "emergency mode already active (trigger area %s)", m.state.TriggerAreaID)
	}
	if _, ok := m.adjacency[areaID]; !ok {
		m.mu.Unlock()
		return nil, errors.Errorf(errors.KindNotFound, "unknown area: %s", areaID)
	}

	st := &State{
		Active:        true,
		ActivatedAt:   time.Now(),
		Trigger:       trigger,
		AdminID:       adminID,
		TriggerAreaID: areaID,
		AffectedAreas: m.closure(areaID),
	}
	m.state = st
	snapshot := st.clone()
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.Record(audit.Entry{
			EventType: audit.EventEmergencyActivate,
			AdminID:   adminID,
			AreaID:    areaID,
			New:       snapshot,
			Success:   true,
		})
	}
	m.logger.Warn("Emergency mode activated",
		"trigger", trigger, "area", areaID, "affected", len(snapshot.AffectedAreas), "admin", adminID)

	m.notify(snapshot)
	return snapshot, nil
}

// ActivateAutomatic is the alert engine's escalation hook.
func (m *Manager) ActivateAutomatic(areaID string) error {
	_, err := m.Activate(areaID, TriggerAutomatic, "")
	return err
}

// Deactivate clears emergency mode. Deactivating while inactive is a conflict.
func (m *Manager) Deactivate(adminID string) error {
	m.mu.Lock()
	if m.state == nil {
		m.mu.Unlock()
		return errors.New(errors.KindConflict, "emergency mode is not active")
	}
	prev := m.state.clone()
	m.state = nil
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.Record(audit.Entry{
			EventType: audit.EventEmergencyDeactivate,
			AdminID:   adminID,
			AreaID:    prev.TriggerAreaID,
			Previous:  prev,
			Success:   true,
		})
	}
	m.logger.Info("Emergency mode deactivated", "admin", adminID, "was_active_for", time.Since(prev.ActivatedAt).Round(time.Second))

	m.notify(nil)
	return nil
}

// State returns a snapshot of the current episode, or nil when inactive.
func (m *Manager) State() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil
	}
	return m.state.clone()
}

// Subscribe registers a listener invoked on activation (with the new state)
// and deactivation (with nil).
func (m *Manager) Subscribe(fn func(*State)) int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	return id
}

// Unsubscribe removes a listener.
func (m *Manager) Unsubscribe(id int) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	delete(m.subs, id)
}

func (m *Manager) notify(st *State) {
	m.subMu.RLock()
	callbacks := make([]func(*State), 0, len(m.subs))
	for _, fn := range m.subs {
		callbacks = append(callbacks, fn)
	}
	m.subMu.RUnlock()

	for _, fn := range callbacks {
		fn(st)
	}
}

// closure walks the adjacency graph breadth-first from the start area.
// Caller holds m.mu.
func (m *Manager) closure(start string) []string {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range m.adjacency[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	out := make([]string, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *State) clone() *State {
	out := *s
	out.AffectedAreas = make([]string, len(s.AffectedAreas))
	copy(out.AffectedAreas, s.AffectedAreas)
	return &out
}
