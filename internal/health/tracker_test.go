// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestTracker(at time.Time) (*Tracker, *time.Time) {
	clock := at
	tr := NewTracker(nil)
	tr.now = func() time.Time { return clock }
	return tr, &clock
}

func TestStats_Windows(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tr, clock := newTestTracker(base)

	errSend := errors.New("write: broken pipe")

	tr.RecordStreamSendError(errSend, "conn-1") // t=0
	*clock = base.Add(10 * time.Minute)
	tr.RecordSystemError(errors.New("boom"), "scheduler") // t=10m
	*clock = base.Add(42 * time.Minute)
	tr.RecordStreamSendError(errSend, "conn-2") // t=42m

	*clock = base.Add(44 * time.Minute)
	stats := tr.Stats()
	assert.Equal(t, 1, stats.Last5Minutes)
	assert.Equal(t, 1, stats.Last15Minutes, "10m-old error aged out of the 15m window by t=44m")
	assert.Equal(t, 3, stats.LastHour)
	assert.Equal(t, int64(2), stats.ByCategory[CategoryStreamSend])
	assert.Equal(t, int64(1), stats.ByCategory[CategorySystem])
	assert.False(t, stats.DegradedMode)
}

func TestStats_DegradedOnDataStreamErrors(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tr, clock := newTestTracker(base)

	feedErr := errors.New("feed stalled")
	for i := 0; i <= degradedDataStreamErrors; i++ {
		*clock = base.Add(time.Duration(i) * time.Second)
		tr.RecordDataStreamError(feedErr, "main-gate")
	}

	stats := tr.Stats()
	assert.True(t, stats.DegradedMode)

	// same errors outside the 5-minute window clear the flag
	*clock = base.Add(10 * time.Minute)
	assert.False(t, tr.Stats().DegradedMode)
}

func TestStatusFor(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tr, clock := newTestTracker(base)

	assert.Equal(t, StatusOperational, tr.StatusFor(CategoryDataStream))

	tr.RecordDataStreamError(errors.New("stall"), "main-gate")
	assert.Equal(t, StatusDegraded, tr.StatusFor(CategoryDataStream))
	assert.Equal(t, StatusOperational, tr.StatusFor(CategorySystem))

	for i := 0; i <= degradedDataStreamErrors; i++ {
		tr.RecordDataStreamError(errors.New("stall"), "main-gate")
	}
	assert.Equal(t, StatusDown, tr.StatusFor(CategoryDataStream))

	*clock = base.Add(time.Hour)
	assert.Equal(t, StatusOperational, tr.StatusFor(CategoryDataStream))
}

func TestTotalsSurviveWindowEviction(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	tr, clock := newTestTracker(base)

	tr.RecordSystemError(errors.New("boom"), "startup")
	*clock = base.Add(2 * time.Hour)
	tr.RecordSystemError(errors.New("boom"), "sweep")

	stats := tr.Stats()
	assert.Equal(t, 1, stats.LastHour)
	assert.Equal(t, int64(2), stats.ByCategory[CategorySystem], "lifetime totals are not windowed")
}
