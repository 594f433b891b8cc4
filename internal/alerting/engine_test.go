// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"yatra.is/crowdwatch/internal/config"
	"yatra.is/crowdwatch/internal/errors"
	"yatra.is/crowdwatch/internal/monitor"
	"yatra.is/crowdwatch/internal/threshold"
)

type fakeActivator struct {
	calls []string
	err   error
}

func (f *fakeActivator) ActivateAutomatic(areaID string) error {
	f.calls = append(f.calls, areaID)
	return f.err
}

func newTestEngine(t *testing.T) (*Engine, *fakeActivator) {
	t.Helper()
	areas := []config.Area{{ID: "a", Name: "Area A", Capacity: 100}}
	tm := threshold.NewManager(areas, config.ThresholdsBlock{Warning: 50, Critical: 75, Emergency: 90}, nil, nil)
	activator := &fakeActivator{}
	return NewEngine(tm, activator, nil, nil), activator
}

func reading(density float64, offset time.Duration) monitor.Reading {
	return monitor.Reading{AreaID: "a", Timestamp: time.Now().Add(offset), Density: density}
}

// Density sequence 40 -> 60 -> 80 -> 95 -> 60 over thresholds {50, 75, 90}:
// alerts at 60 (warning), 80 (critical), 95 (emergency, plus automatic
// emergency activation). The trailing 60 stays warning with no resolution.
func TestEvaluate_EscalationScenario(t *testing.T) {
	engine, activator := newTestEngine(t)

	var events []AlertEvent
	engine.Subscribe(func(ev AlertEvent) { events = append(events, ev) })

	densities := []float64{40, 60, 80, 95, 60}
	for i, d := range densities {
		engine.Evaluate(reading(d, time.Duration(i)*time.Second))
	}

	require.Len(t, events, 3)
	assert.Equal(t, threshold.LevelWarning, events[0].Severity)
	assert.Equal(t, 50.0, events[0].Threshold)
	assert.Equal(t, threshold.LevelCritical, events[1].Severity)
	assert.Equal(t, threshold.LevelEmergency, events[2].Severity)
	assert.Equal(t, 90.0, events[2].Threshold)

	assert.Equal(t, []string{"a"}, activator.calls)

	// level dropped back to warning: recorded but nothing resolved yet
	assert.Equal(t, threshold.LevelWarning, engine.CurrentLevel("a"))
	assert.Len(t, engine.ActiveAlerts(), 3)

	// only a drop below warning resolves
	engine.Evaluate(reading(30, 10*time.Second))
	assert.Equal(t, threshold.LevelNormal, engine.CurrentLevel("a"))

	active := engine.ActiveAlerts()
	assert.Len(t, active, 2, "one open alert resolved on return to normal")
}

func TestEvaluate_Idempotent(t *testing.T) {
	engine, _ := newTestEngine(t)

	count := 0
	engine.Subscribe(func(AlertEvent) { count++ })

	engine.Evaluate(reading(60, 0))
	engine.Evaluate(reading(60, time.Second))
	engine.Evaluate(reading(62, 2*time.Second)) // same level, different value

	assert.Equal(t, 1, count, "re-evaluating an unchanged level emits nothing")
	assert.Len(t, engine.History("a", 0), 1)
}

func TestEvaluate_SeverityMatchesEffectiveConfig(t *testing.T) {
	areas := []config.Area{{ID: "a", Name: "Area A", Capacity: 100}}
	tm := threshold.NewManager(areas, config.DefaultThresholds(), nil, nil)
	_, err := tm.Save(threshold.Config{
		AreaID: "a", Warning: 50, Critical: 75, Emergency: 90,
		Profiles: []threshold.TimeProfile{
			{Name: "rush", Start: "00:00", End: "23:59", Warning: 20, Critical: 40, Emergency: 60},
		},
	}, "admin", "")
	require.NoError(t, err)

	engine := NewEngine(tm, nil, nil, nil)
	engine.Evaluate(monitor.Reading{AreaID: "a", Timestamp: time.Now(), Density: 45})

	// 45 is normal against the base config but critical under the profile
	assert.Equal(t, threshold.LevelCritical, engine.CurrentLevel("a"))
}

func TestAcknowledge_ExactlyOnce(t *testing.T) {
	engine, _ := newTestEngine(t)

	engine.Evaluate(reading(60, 0))
	alerts := engine.ActiveAlerts()
	require.Len(t, alerts, 1)

	acked, err := engine.Acknowledge(alerts[0].ID, "authority-1")
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged)
	assert.Equal(t, "authority-1", acked.AcknowledgedBy)
	assert.NotNil(t, acked.AcknowledgedAt)

	_, err = engine.Acknowledge(alerts[0].ID, "authority-2")
	require.Error(t, err)
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))
}

func TestAcknowledge_ResolvedConflicts(t *testing.T) {
	engine, _ := newTestEngine(t)

	engine.Evaluate(reading(60, 0))
	id := engine.ActiveAlerts()[0].ID
	engine.Evaluate(reading(10, time.Second)) // resolves

	_, err := engine.Acknowledge(id, "authority-1")
	assert.Equal(t, errors.KindConflict, errors.GetKind(err))

	_, err = engine.Acknowledge("no-such-alert", "authority-1")
	assert.Equal(t, errors.KindNotFound, errors.GetKind(err))
}

func TestHistory_ReverseChronological(t *testing.T) {
	engine, _ := newTestEngine(t)

	// warning -> normal cycles create one alert each
	for i := 0; i < 4; i++ {
		engine.Evaluate(reading(60, time.Duration(2*i)*time.Second))
		engine.Evaluate(reading(10, time.Duration(2*i+1)*time.Second))
	}

	hist := engine.History("a", 2)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Timestamp.After(hist[1].Timestamp))

	assert.Len(t, engine.History("a", 0), 4)
}

func TestQuery_FiltersAndPagination(t *testing.T) {
	engine, _ := newTestEngine(t)

	for i := 0; i < 3; i++ {
		engine.Evaluate(reading(60, time.Duration(2*i)*time.Second))
		engine.Evaluate(reading(10, time.Duration(2*i+1)*time.Second))
	}
	engine.Evaluate(reading(80, 100*time.Second)) // open critical (via warning first? jumps straight to critical)

	resolved := true
	page, total := engine.Query(Filter{Resolved: &resolved, Limit: 2, Offset: 0})
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)

	page, total = engine.Query(Filter{Resolved: &resolved, Limit: 2, Offset: 2})
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)

	page, total = engine.Query(Filter{Severity: threshold.LevelCritical})
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.False(t, page[0].Resolved)

	page, _ = engine.Query(Filter{AreaID: "other"})
	assert.Empty(t, page)
}

func TestAreaStats(t *testing.T) {
	engine, _ := newTestEngine(t)

	engine.Evaluate(reading(60, 0))
	engine.Evaluate(reading(10, time.Second))
	engine.Evaluate(reading(95, 2*time.Second))

	stats := engine.AreaStats("a")
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 1, stats.BySeverity[threshold.LevelWarning])
	assert.Equal(t, 1, stats.BySeverity[threshold.LevelEmergency])
}

func TestHistory_Bounded(t *testing.T) {
	engine, _ := newTestEngine(t)

	// each cycle leaves one resolved alert in history
	for i := 0; i < maxHistoryPerArea+100; i++ {
		engine.Evaluate(reading(60, time.Duration(2*i)*time.Second))
		engine.Evaluate(reading(10, time.Duration(2*i+1)*time.Second))
	}

	assert.Equal(t, maxHistoryPerArea, len(engine.History("a", 0)), "oldest entries evicted past the cap")
}

func TestAutoActivation_ConflictIgnored(t *testing.T) {
	engine, activator := newTestEngine(t)
	activator.err = errors.New(errors.KindConflict, "already active")

	engine.Evaluate(reading(95, 0))
	engine.Evaluate(reading(10, time.Second))
	engine.Evaluate(reading(95, 2*time.Second))

	// both escalations attempted activation; conflicts are swallowed
	assert.Equal(t, []string{"a", "a"}, activator.calls)
}
