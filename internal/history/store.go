// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Summary is one area's aggregated density over a time bucket.
type Summary struct {
	BucketTime time.Time `json:"bucket_time"`
	AreaID     string    `json:"area_id"`
	Samples    int64     `json:"samples"`
	AvgDensity float64   `json:"avg_density"`
	MinDensity float64   `json:"min_density"`
	MaxDensity float64   `json:"max_density"`
	PeakLevel  string    `json:"peak_level"`
}

// Store handles persistence of density history to SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
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
	CREATE TABLE IF NOT EXISTS density_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bucket_time INTEGER NOT NULL, -- Unix timestamp
		area_id TEXT NOT NULL,
		samples INTEGER DEFAULT 0,
		sum_density REAL DEFAULT 0,
		min_density REAL DEFAULT 0,
		max_density REAL DEFAULT 0,
		peak_level TEXT,
		UNIQUE(bucket_time, area_id)
	);
	CREATE INDEX IF NOT EXISTS idx_density_summaries_time ON density_summaries(bucket_time);
	CREATE INDEX IF NOT EXISTS idx_density_summaries_area ON density_summaries(area_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordSummaries persists a batch of bucket summaries using UPSERT; a
// re-flushed bucket merges into the existing row.
func (s *Store) RecordSummaries(summaries []summaryRow) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO density_summaries (bucket_time, area_id, samples, sum_density, min_density, max_density, peak_level)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket_time, area_id) DO UPDATE SET
			samples = samples + excluded.samples,
			sum_density = sum_density + excluded.sum_density,
			min_density = MIN(min_density, excluded.min_density),
			max_density = MAX(max_density, excluded.max_density),
			peak_level = CASE
				WHEN excluded.max_density > max_density THEN excluded.peak_level
				ELSE peak_level
			END
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, row := range summaries {
		_, err := stmt.Exec(
			row.bucketTime.Unix(),
			row.areaID,
			row.samples,
			row.sumDensity,
			row.minDensity,
			row.maxDensity,
			row.peakLevel,
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// AreaHistory returns an area's bucket summaries in a time range, newest
// first.
func (s *Store) AreaHistory(areaID string, from, to time.Time, limit, offset int) ([]Summary, error) {
	query := `
		SELECT bucket_time, area_id, samples, sum_density, min_density, max_density, peak_level
		FROM density_summaries
		WHERE bucket_time >= ? AND bucket_time <= ?
	`
	args := []interface{}{from.Unix(), to.Unix()}
	if areaID != "" {
		query += " AND area_id = ?"
		args = append(args, areaID)
	}

	query += " ORDER BY bucket_time DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Summary
	for rows.Next() {
		var sum Summary
		var ts int64
		var sumDensity float64
		err := rows.Scan(&ts, &sum.AreaID, &sum.Samples, &sumDensity,
			&sum.MinDensity, &sum.MaxDensity, &sum.PeakLevel)
		if err != nil {
			return nil, err
		}
		sum.BucketTime = time.Unix(ts, 0)
		if sum.Samples > 0 {
			sum.AvgDensity = sumDensity / float64(sum.Samples)
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

// PeakAreas returns the areas with the highest observed density in a time
// range.
func (s *Store) PeakAreas(from, to time.Time, limit int) ([]Summary, error) {
	query := `
		SELECT area_id, SUM(samples), SUM(sum_density), MAX(max_density)
		FROM density_summaries
		WHERE bucket_time >= ? AND bucket_time <= ?
		GROUP BY area_id
		ORDER BY MAX(max_density) DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, from.Unix(), to.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Summary
	for rows.Next() {
		var sum Summary
		var sumDensity float64
		if err := rows.Scan(&sum.AreaID, &sum.Samples, &sumDensity, &sum.MaxDensity); err != nil {
			return nil, err
		}
		if sum.Samples > 0 {
			sum.AvgDensity = sumDensity / float64(sum.Samples)
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

// Cleanup removes records older than the retention period.
func (s *Store) Cleanup(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := s.db.Exec("DELETE FROM density_summaries WHERE bucket_time < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
