// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package audit records the who/what/when of every administrative mutation:
// threshold configuration changes, emergency mode transitions, and alert
// acknowledgments. Entries go to the structured log always and to SQLite
// when a store is configured.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"yatra.is/crowdwatch/internal/logging"
)

// EventType defines the type of audit event.
type EventType string

const (
	EventConfigUpdate        EventType = "config_update"
	EventConfigDelete        EventType = "config_delete"
	EventEmergencyActivate   EventType = "emergency_activate"
	EventEmergencyDeactivate EventType = "emergency_deactivate"
	EventAlertAcknowledge    EventType = "alert_acknowledge"
)

// Entry is one audit log record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	AdminID   string    `json:"admin_id,omitempty"`
	AreaID    string    `json:"area_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Previous  any       `json:"previous,omitempty"`
	New       any       `json:"new,omitempty"`
	Success   bool      `json:"success"`
}

// Logger writes audit entries to the structured log and the store.
type Logger struct {
	store  *Store
	logger *logging.Logger
}

// NewLogger creates an audit logger. The store may be nil, in which case
// entries are only logged.
func NewLogger(store *Store, logger *logging.Logger) *Logger {
	if logger == nil {
		logger = logging.WithComponent("audit")
	}
	return &Logger{store: store, logger: logger}
}

// Store returns the underlying audit store, or nil when persistence is
// disabled.
func (l *Logger) Store() *Store {
	return l.store
}

// Record fills in missing fields and writes the entry. Persistence failures
// are logged but not returned: an audit write must never fail the operation
// it describes.
func (l *Logger) Record(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.logger.Info("AUDIT",
		"event_type", e.EventType,
		"admin", e.AdminID,
		"area", e.AreaID,
		"reason", e.Reason,
		"success", e.Success,
	)
	if e.Previous != nil || e.New != nil {
		if data, err := json.Marshal(map[string]any{"previous": e.Previous, "new": e.New}); err == nil {
			l.logger.Debug("AUDIT_DETAIL", "data", string(data))
		}
	}

	if l.store != nil {
		if err := l.store.Append(e); err != nil {
			l.logger.Error("Failed to persist audit entry", "error", err, "event_type", e.EventType)
		}
	}
}

// StartRetentionSweep deletes expired entries once a day until ctx is done.
func (l *Logger) StartRetentionSweep(retentionDays int, stop <-chan struct{}) {
	if l.store == nil || retentionDays <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := l.store.Sweep(retentionDays); err != nil {
					l.logger.Error("Audit retention sweep failed", "error", err)
				} else if n > 0 {
					l.logger.Info("Audit retention sweep", "deleted", n)
				}
			case <-stop:
				return
			}
		}
	}()
}
