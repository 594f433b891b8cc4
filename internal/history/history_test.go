// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"yatra.is/crowdwatch/internal/monitor"
	"yatra.is/crowdwatch/internal/threshold"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func levelAt(_ string, _ time.Time, density float64) threshold.Level {
	lvl, _ := threshold.LevelFor(density, threshold.Effective{Warning: 50, Critical: 75, Emergency: 90})
	return lvl
}

func TestCollector_BucketsAndFlush(t *testing.T) {
	store := openTestStore(t)
	c := NewCollector(store, time.Minute, levelAt)

	base := time.Date(2026, 8, 23, 9, 30, 10, 0, time.UTC)
	c.Ingest(monitor.Reading{AreaID: "main-gate", Timestamp: base, Density: 40})
	c.Ingest(monitor.Reading{AreaID: "main-gate", Timestamp: base.Add(20 * time.Second), Density: 60})
	c.Ingest(monitor.Reading{AreaID: "main-gate", Timestamp: base.Add(70 * time.Second), Density: 80})
	c.Ingest(monitor.Reading{AreaID: "east-exit", Timestamp: base, Density: 10})

	require.NoError(t, c.Flush())

	rows, err := store.AreaHistory("main-gate", base.Add(-time.Hour), base.Add(time.Hour), 100, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2, "readings 70s apart land in separate minute buckets")

	// newest first
	assert.Equal(t, int64(1), rows[0].Samples)
	assert.Equal(t, 80.0, rows[0].MaxDensity)
	assert.Equal(t, "critical", rows[0].PeakLevel)

	assert.Equal(t, int64(2), rows[1].Samples)
	assert.Equal(t, 50.0, rows[1].AvgDensity)
	assert.Equal(t, 40.0, rows[1].MinDensity)
	assert.Equal(t, 60.0, rows[1].MaxDensity)
	assert.Equal(t, "warning", rows[1].PeakLevel)
}

func TestFlush_UpsertMergesBucket(t *testing.T) {
	store := openTestStore(t)
	c := NewCollector(store, time.Minute, levelAt)

	base := time.Date(2026, 8, 23, 9, 30, 0, 0, time.UTC)
	c.Ingest(monitor.Reading{AreaID: "main-gate", Timestamp: base, Density: 30})
	require.NoError(t, c.Flush())

	c.Ingest(monitor.Reading{AreaID: "main-gate", Timestamp: base.Add(10 * time.Second), Density: 95})
	require.NoError(t, c.Flush())

	rows, err := store.AreaHistory("main-gate", base.Add(-time.Hour), base.Add(time.Hour), 100, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Samples)
	assert.Equal(t, 62.5, rows[0].AvgDensity)
	assert.Equal(t, 30.0, rows[0].MinDensity)
	assert.Equal(t, 95.0, rows[0].MaxDensity)
	assert.Equal(t, "emergency", rows[0].PeakLevel)
}

func TestPeakAreas(t *testing.T) {
	store := openTestStore(t)
	c := NewCollector(store, time.Minute, levelAt)

	base := time.Date(2026, 8, 23, 9, 30, 0, 0, time.UTC)
	c.Ingest(monitor.Reading{AreaID: "main-gate", Timestamp: base, Density: 95})
	c.Ingest(monitor.Reading{AreaID: "east-exit", Timestamp: base, Density: 40})
	require.NoError(t, c.Flush())

	peaks, err := store.PeakAreas(base.Add(-time.Hour), base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, peaks, 2)
	assert.Equal(t, "main-gate", peaks[0].AreaID)
	assert.Equal(t, 95.0, peaks[0].MaxDensity)
}

func TestCleanup(t *testing.T) {
	store := openTestStore(t)
	c := NewCollector(store, time.Minute, nil)

	c.Ingest(monitor.Reading{AreaID: "main-gate", Timestamp: time.Now().Add(-48 * time.Hour), Density: 20})
	c.Ingest(monitor.Reading{AreaID: "main-gate", Timestamp: time.Now(), Density: 30})
	require.NoError(t, c.Flush())

	removed, err := store.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestFlush_Empty(t *testing.T) {
	store := openTestStore(t)
	c := NewCollector(store, 0, nil)
	assert.NoError(t, c.Flush())
}
