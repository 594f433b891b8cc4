// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package health accumulates recent error counts by category and derives
// the process degraded-mode flag. Data-stream and stream-send failures are
// recorded here instead of being thrown onward: the feed and the streaming
// layer keep running while the health endpoint reports the damage.
package health

import (
	"sync"
	"time"

	"yatra.is/crowdwatch/internal/logging"
)

// Error categories.
const (
	CategorySystem     = "system"
	CategoryDataStream = "data_stream"
	CategoryStreamSend = "stream_send"
	CategoryStorage    = "storage"
)

// Degraded-mode thresholds over the 5-minute window.
const (
	degradedDataStreamErrors = 10
	degradedTotalErrors      = 25
)

// retention bounds the recorded error timestamps; Stats only looks back one
// hour.
const retention = time.Hour

type record struct {
	at       time.Time
	category string
}

// Tracker is the process-wide error accumulator.
type Tracker struct {
	mu      sync.Mutex
	records []record
	totals  map[string]int64
	logger  *logging.Logger

	now func() time.Time // injectable for tests
}

// NewTracker creates an empty tracker.
func NewTracker(logger *logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.WithComponent("health")
	}
	return &Tracker{
		totals: make(map[string]int64),
		logger: logger,
		now:    time.Now,
	}
}

// RecordSystemError records an unexpected internal failure.
func (t *Tracker) RecordSystemError(err error, context string) {
	t.record(CategorySystem)
	t.logger.Error("System error", "context", context, "error", err)
}

// RecordDataStreamError records a failure in the inbound density feed.
func (t *Tracker) RecordDataStreamError(err error, areaID string) {
	t.record(CategoryDataStream)
	t.logger.Warn("Data stream error", "area", areaID, "error", err)
}

// RecordStreamSendError records a failed push to an SSE/WS client.
func (t *Tracker) RecordStreamSendError(err error, connID string) {
	t.record(CategoryStreamSend)
	t.logger.Warn("Stream send error", "conn", connID, "error", err)
}

// RecordError records an error under an arbitrary category.
func (t *Tracker) RecordError(category string, err error) {
	t.record(category)
	t.logger.Warn("Error recorded", "category", category, "error", err)
}

func (t *Tracker) record(category string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.totals[category]++
	t.records = append(t.records, record{at: now, category: category})

	// drop entries older than the widest stats window
	cutoff := now.Add(-retention)
	i := 0
	for i < len(t.records) && t.records[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.records = append(t.records[:0], t.records[i:]...)
	}
}

// Stats is the health snapshot served by the health endpoint.
type Stats struct {
	Last5Minutes  int              `json:"last_5_minutes"`
	Last15Minutes int              `json:"last_15_minutes"`
	LastHour      int              `json:"last_hour"`
	ByCategory    map[string]int64 `json:"by_category"`
	DegradedMode  bool             `json:"degraded_mode"`
}

// Stats computes windowed counts and the degraded-mode flag.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var last5, last15, lastHour, stream5 int
	for _, r := range t.records {
		age := now.Sub(r.at)
		if age > time.Hour {
			continue
		}
		lastHour++
		if age <= 15*time.Minute {
			last15++
		}
		if age <= 5*time.Minute {
			last5++
			if r.category == CategoryDataStream {
				stream5++
			}
		}
	}

	byCategory := make(map[string]int64, len(t.totals))
	for k, v := range t.totals {
		byCategory[k] = v
	}

	return Stats{
		Last5Minutes:  last5,
		Last15Minutes: last15,
		LastHour:      lastHour,
		ByCategory:    byCategory,
		DegradedMode:  stream5 > degradedDataStreamErrors || last5 > degradedTotalErrors,
	}
}

// ServiceStatus classifies one subsystem for the health payload.
type ServiceStatus string

const (
	StatusOperational ServiceStatus = "operational"
	StatusDegraded    ServiceStatus = "degraded"
	StatusDown        ServiceStatus = "down"
)

// StatusFor derives a subsystem status from its recent error count in the
// 5-minute window.
func (t *Tracker) StatusFor(category string) ServiceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var recent int
	for _, r := range t.records {
		if r.category == category && now.Sub(r.at) <= 5*time.Minute {
			recent++
		}
	}
	switch {
	case recent == 0:
		return StatusOperational
	case recent <= degradedDataStreamErrors:
		return StatusDegraded
	default:
		return StatusDown
	}
}
