// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists audit entries to SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the audit database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL, -- Unix nanoseconds
		event_type TEXT NOT NULL,
		admin_id TEXT,
		area_id TEXT,
		reason TEXT,
		previous TEXT, -- JSON snapshot before the change
		new TEXT,      -- JSON snapshot after the change
		success INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_time ON audit_entries(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_area ON audit_entries(area_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append writes one audit entry.
func (s *Store) Append(e Entry) error {
	prev, err := marshalSnapshot(e.Previous)
	if err != nil {
		return err
	}
	next, err := marshalSnapshot(e.New)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO audit_entries (id, timestamp, event_type, admin_id, area_id, reason, previous, new, success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixNano(), string(e.EventType), e.AdminID, e.AreaID, e.Reason, prev, next, boolToInt(e.Success))
	return err
}

// Recent returns the most recent entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	// rowid breaks timestamp ties by insertion order
	rows, err := s.db.Query(`
		SELECT id, timestamp, event_type, admin_id, area_id, reason, previous, new, success
		FROM audit_entries ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var prev, next string
		var success int
		if err := rows.Scan(&e.ID, &ts, &e.EventType, &e.AdminID, &e.AreaID, &e.Reason, &prev, &next, &success); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, ts)
		e.Success = success != 0
		if prev != "" {
			e.Previous = json.RawMessage(prev)
		}
		if next != "" {
			e.New = json.RawMessage(next)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Sweep deletes entries older than the retention window.
func (s *Store) Sweep(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixNano()
	res, err := s.db.Exec(`DELETE FROM audit_entries WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func marshalSnapshot(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit snapshot: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
