// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package alerting evaluates density readings against the effective
// threshold configuration and maintains the alert lifecycle: raise on level
// increase, resolve on return to normal, acknowledge exactly once.
package alerting

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"yatra.is/crowdwatch/internal/audit"
	"yatra.is/crowdwatch/internal/errors"
	"yatra.is/crowdwatch/internal/logging"
	"yatra.is/crowdwatch/internal/monitor"
	"yatra.is/crowdwatch/internal/threshold"
)

// maxHistoryPerArea bounds the per-area alert history; the oldest entries
// are evicted once the cap is reached.
const maxHistoryPerArea = 1000

// EmergencyActivator is implemented by the emergency manager. Activation
// failures because emergency mode is already active are expected and ignored.
type EmergencyActivator interface {
	ActivateAutomatic(areaID string) error
}

// Engine owns alert state. All transitions happen synchronously inside
// Evaluate, which is invoked from the density monitor's subscriber hook.
type Engine struct {
	mu         sync.RWMutex
	thresholds *threshold.Manager
	areaLevels map[string]threshold.Level
	history    map[string][]*AlertEvent
	byID       map[string]*AlertEvent

	subMu   sync.RWMutex
	subs    map[int]func(AlertEvent)
	nextSub int

	emergency EmergencyActivator
	audit     *audit.Logger
	logger    *logging.Logger
}

// NewEngine creates an alert engine. The emergency activator may be nil in
// tests that only exercise the threshold state machine.
func NewEngine(thresholds *threshold.Manager, emergency EmergencyActivator, auditLog *audit.Logger, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.WithComponent("alerting")
	}
	return &Engine{
		thresholds: thresholds,
		areaLevels: make(map[string]threshold.Level),
		history:    make(map[string][]*AlertEvent),
		byID:       make(map[string]*AlertEvent),
		subs:       make(map[int]func(AlertEvent)),
		emergency:  emergency,
		audit:      auditLog,
		logger:     logger,
	}
}

// Evaluate re-derives the area's threshold level from the reading and the
// effective configuration at the reading's timestamp, then applies the
// transition rules. Re-evaluating an unchanged level emits nothing.
func (e *Engine) Evaluate(r monitor.Reading) {
	eff, err := e.thresholds.EffectiveAt(r.AreaID, r.Timestamp)
	if err != nil {
		e.logger.Error("Cannot resolve thresholds for reading", "area", r.AreaID, "error", err)
		return
	}
	level, crossed := threshold.LevelFor(r.Density, eff)

	e.mu.Lock()
	prev, known := e.areaLevels[r.AreaID]
	if !known {
		prev = threshold.LevelNormal
	}
	if level == prev {
		e.mu.Unlock()
		return
	}
	e.areaLevels[r.AreaID] = level

	var emitted *AlertEvent
	switch {
	case level.Rank() > prev.Rank():
		emitted = e.appendLocked(&AlertEvent{
			ID:        uuid.NewString(),
			AreaID:    r.AreaID,
			Timestamp: r.Timestamp,
			Severity:  level,
			Density:   r.Density,
			Threshold: crossed,
			Type:      EventTypeThresholdViolation,
		})

	case level == threshold.LevelNormal:
		// level decreased all the way back: resolve the most recent open alert
		emitted = e.resolveLatestLocked(r.AreaID, r.Timestamp)

	default:
		// decreased but still elevated: track the level, emit nothing until
		// the area returns to normal
	}
	e.mu.Unlock()

	if emitted == nil {
		return
	}

	if emitted.Resolved {
		e.logger.Info("Alert resolved", "area", emitted.AreaID, "severity", emitted.Severity, "density", r.Density)
	} else {
		e.logger.Warn("Alert raised", "area", emitted.AreaID, "severity", emitted.Severity,
			"density", r.Density, "threshold", emitted.Threshold)
	}

	e.notify(*emitted)

	if !emitted.Resolved && emitted.Severity == threshold.LevelEmergency && e.emergency != nil {
		if err := e.emergency.ActivateAutomatic(r.AreaID); err != nil {
			// already-active is the common case during a sustained surge
			if !errors.IsKind(err, errors.KindConflict) {
				e.logger.Error("Automatic emergency activation failed", "area", r.AreaID, "error", err)
			}
		}
	}
}

// appendLocked adds a new alert to the area history, evicting the oldest
// entry past the cap. Caller holds e.mu.
func (e *Engine) appendLocked(ev *AlertEvent) *AlertEvent {
	log := append(e.history[ev.AreaID], ev)
	if len(log) > maxHistoryPerArea {
		delete(e.byID, log[0].ID)
		log = log[1:]
	}
	e.history[ev.AreaID] = log
	e.byID[ev.ID] = ev
	return ev
}

// resolveLatestLocked marks the most recent unresolved alert for the area
// resolved. Caller holds e.mu.
func (e *Engine) resolveLatestLocked(areaID string, at time.Time) *AlertEvent {
	log := e.history[areaID]
	for i := len(log) - 1; i >= 0; i-- {
		if !log[i].Resolved {
			log[i].Resolved = true
			t := at
			log[i].ResolvedAt = &t
			return log[i]
		}
	}
	return nil
}

// Acknowledge marks an alert acknowledged exactly once. Acknowledging an
// already-acknowledged or resolved alert is a conflict.
func (e *Engine) Acknowledge(alertID, authorityID string) (AlertEvent, error) {
	e.mu.Lock()
	ev, ok := e.byID[alertID]
	if !ok {
		e.mu.Unlock()
		return AlertEvent{}, errors.Errorf(errors.KindNotFound, "unknown alert: %s", alertID)
	}
	if ev.Acknowledged {
		e.mu.Unlock()
		return AlertEvent{}, errors.Errorf(errors.KindConflict, "alert %s already acknowledged by %s", alertID, ev.AcknowledgedBy)
	}
	if ev.Resolved {
		e.mu.Unlock()
		return AlertEvent{}, errors.Errorf(errors.KindConflict, "alert %s is already resolved", alertID)
	}
	now := time.Now()
	ev.Acknowledged = true
	ev.AcknowledgedBy = authorityID
	ev.AcknowledgedAt = &now
	out := *ev
	e.mu.Unlock()

	if e.audit != nil {
		e.audit.Record(audit.Entry{
			EventType: audit.EventAlertAcknowledge,
			AdminID:   authorityID,
			AreaID:    out.AreaID,
			New:       out,
			Success:   true,
		})
	}
	e.notify(out)
	return out, nil
}

// CurrentLevel returns the engine's recorded level for an area.
func (e *Engine) CurrentLevel(areaID string) threshold.Level {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if lvl, ok := e.areaLevels[areaID]; ok {
		return lvl
	}
	return threshold.LevelNormal
}

// ActiveAlerts returns all unresolved alerts, newest first.
func (e *Engine) ActiveAlerts() []AlertEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []AlertEvent
	for _, log := range e.history {
		for _, ev := range log {
			if !ev.Resolved {
				out = append(out, *ev)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// History returns up to limit of an area's most recent alerts in
// reverse-chronological order.
func (e *Engine) History(areaID string, limit int) []AlertEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	log := e.history[areaID]
	if limit <= 0 || limit > len(log) {
		limit = len(log)
	}
	out := make([]AlertEvent, 0, limit)
	for i := len(log) - 1; i >= len(log)-limit; i-- {
		out = append(out, *log[i])
	}
	return out
}

// Query returns one page of filtered history across all areas, newest
// first, plus the total number of matches before paging.
func (e *Engine) Query(f Filter) ([]AlertEvent, int) {
	e.mu.RLock()
	var matched []AlertEvent
	for areaID, log := range e.history {
		if f.AreaID != "" && f.AreaID != areaID {
			continue
		}
		for _, ev := range log {
			if f.Severity != "" && ev.Severity != f.Severity {
				continue
			}
			if f.Acknowledged != nil && ev.Acknowledged != *f.Acknowledged {
				continue
			}
			if f.Resolved != nil && ev.Resolved != *f.Resolved {
				continue
			}
			matched = append(matched, *ev)
		}
	}
	e.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	total := len(matched)
	if f.Offset >= total {
		return []AlertEvent{}, total
	}
	end := f.Offset + f.Limit
	if f.Limit <= 0 || end > total {
		end = total
	}
	return matched[f.Offset:end], total
}

// AreaStats returns aggregate counts for one area, or for all areas when
// areaID is empty.
func (e *Engine) AreaStats(areaID string) Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := Stats{BySeverity: make(map[threshold.Level]int)}
	for id, log := range e.history {
		if areaID != "" && areaID != id {
			continue
		}
		for _, ev := range log {
			stats.Total++
			stats.BySeverity[ev.Severity]++
			if ev.Resolved {
				stats.Resolved++
			} else {
				stats.Active++
			}
			if ev.Acknowledged {
				stats.Acknowledged++
			}
		}
	}
	return stats
}

// Subscribe registers a listener for new and updated alerts, returning a
// subscription id.
func (e *Engine) Subscribe(fn func(AlertEvent)) int {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.nextSub++
	id := e.nextSub
	e.subs[id] = fn
	return id
}

// Unsubscribe removes a listener.
func (e *Engine) Unsubscribe(id int) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	delete(e.subs, id)
}

func (e *Engine) notify(ev AlertEvent) {
	e.subMu.RLock()
	callbacks := make([]func(AlertEvent), 0, len(e.subs))
	for _, fn := range e.subs {
		callbacks = append(callbacks, fn)
	}
	e.subMu.RUnlock()

	for _, fn := range callbacks {
		fn(ev)
	}
}
