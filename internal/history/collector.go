// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package history

import (
	"sync"
	"time"

	"yatra.is/crowdwatch/internal/monitor"
	"yatra.is/crowdwatch/internal/threshold"
)

// Collector handles in-memory aggregation of density readings into
// time-bucketed per-area summaries.
type Collector struct {
	mu      sync.Mutex
	buckets map[key]*summaryRow
	store   *Store
	window  time.Duration

	levelFor func(areaID string, at time.Time, density float64) threshold.Level
}

type key struct {
	bucket int64
	areaID string
}

type summaryRow struct {
	bucketTime time.Time
	areaID     string
	samples    int64
	sumDensity float64
	minDensity float64
	maxDensity float64
	peakLevel  string
}

// NewCollector creates a history collector. levelFor classifies a reading
// for the bucket's peak level and may be nil when level tracking is not
// wanted.
func NewCollector(store *Store, bucketWindow time.Duration, levelFor func(areaID string, at time.Time, density float64) threshold.Level) *Collector {
	if bucketWindow == 0 {
		bucketWindow = time.Minute
	}
	return &Collector{
		buckets:  make(map[key]*summaryRow),
		store:    store,
		window:   bucketWindow,
		levelFor: levelFor,
	}
}

// Store returns the underlying history store.
func (c *Collector) Store() *Store {
	return c.store
}

// Ingest records one density reading into its time bucket.
func (c *Collector) Ingest(r monitor.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := r.Timestamp.Unix()
	bucketStart := ts - (ts % int64(c.window.Seconds()))

	k := key{bucket: bucketStart, areaID: r.AreaID}
	s, exists := c.buckets[k]
	if !exists {
		s = &summaryRow{
			bucketTime: time.Unix(bucketStart, 0),
			areaID:     r.AreaID,
			minDensity: r.Density,
			maxDensity: r.Density,
			peakLevel:  string(threshold.LevelNormal),
		}
		c.buckets[k] = s
	}

	s.samples++
	s.sumDensity += r.Density
	if r.Density < s.minDensity {
		s.minDensity = r.Density
	}
	if r.Density >= s.maxDensity {
		s.maxDensity = r.Density
		if c.levelFor != nil {
			s.peakLevel = string(c.levelFor(r.AreaID, r.Timestamp, r.Density))
		}
	}
}

// Flush persists all currently aggregated buckets to the store and clears
// the memory.
func (c *Collector) Flush() error {
	c.mu.Lock()
	toFlush := make([]summaryRow, 0, len(c.buckets))
	for _, s := range c.buckets {
		toFlush = append(toFlush, *s)
	}
	c.buckets = make(map[key]*summaryRow)
	c.mu.Unlock()

	if len(toFlush) == 0 {
		return nil
	}

	return c.store.RecordSummaries(toFlush)
}

// StartBackgroundFlush flushes buckets to the store at fixed intervals
// until stop closes.
func (c *Collector) StartBackgroundFlush(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = c.Flush()
			case <-stop:
				_ = c.Flush()
				return
			}
		}
	}()
}

// StartRetentionSweep removes expired summaries daily until stop closes.
func (c *Collector) StartRetentionSweep(retention time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_, _ = c.store.Cleanup(retention)
			case <-stop:
				return
			}
		}
	}()
}
