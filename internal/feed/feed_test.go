// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"yatra.is/crowdwatch/internal/config"
	"yatra.is/crowdwatch/internal/monitor"
)

var testAreas = []config.Area{
	{ID: "main-gate", Name: "Main Gate", Type: "gate", Capacity: 500},
	{ID: "darshan-hall", Name: "Darshan Hall", Type: "hall", Capacity: 1200},
	{ID: "river-ghat", Name: "River Ghat", Type: "unmapped-type", Capacity: 800},
}

func TestTick_CoversAllAreasWithinBounds(t *testing.T) {
	mon := monitor.New(testAreas, nil)
	f := New(mon, testAreas, time.Second, 42, nil, nil)

	now := time.Date(2026, 8, 23, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		f.Tick(now.Add(time.Duration(i) * time.Second))
	}

	for _, area := range testAreas {
		r, ok := mon.Latest(area.ID)
		require.True(t, ok, "area %s got readings", area.ID)
		assert.GreaterOrEqual(t, r.Density, 0.0)
		assert.LessOrEqual(t, r.Density, 100.0)
	}
}

func TestFeed_Deterministic(t *testing.T) {
	now := time.Date(2026, 8, 23, 7, 0, 0, 0, time.UTC)

	run := func() []float64 {
		mon := monitor.New(testAreas, nil)
		f := New(mon, testAreas, time.Second, 7, nil, nil)
		var out []float64
		for i := 0; i < 10; i++ {
			f.Tick(now.Add(time.Duration(i) * time.Second))
			r, _ := mon.Latest("main-gate")
			out = append(out, r.Density)
		}
		return out
	}

	assert.Equal(t, run(), run(), "same seed replays the same walk")
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "surge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: morning-surge
loop: false
steps:
  - hold: 2s
    densities:
      main-gate: 40
      darshan-hall: 30
  - densities:
      main-gate: 95
`), 0o644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "morning-surge", sc.Name)
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, 2*time.Second, sc.Steps[0].Hold)
	assert.Equal(t, 95.0, sc.Steps[1].Densities["main-gate"])
}

func TestLoadScenario_Invalid(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("name: x\nsteps: []\n"), 0o644))
	_, err := LoadScenario(empty)
	assert.ErrorContains(t, err, "no steps")

	negative := filepath.Join(dir, "neg.yaml")
	require.NoError(t, os.WriteFile(negative, []byte(`
steps:
  - densities:
      main-gate: -5
`), 0o644))
	_, err = LoadScenario(negative)
	assert.ErrorContains(t, err, "negative density")

	_, err = LoadScenario(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestReplayer_AppliesStep(t *testing.T) {
	mon := monitor.New(testAreas, nil)
	r := NewReplayer(mon, &Scenario{
		Name:  "t",
		Steps: []Step{{Densities: map[string]float64{"main-gate": 80}}},
	}, time.Second, nil, nil)

	r.apply(r.scenario.Steps[0], time.Now())

	latest, ok := mon.Latest("main-gate")
	require.True(t, ok)
	assert.Equal(t, 80.0, latest.Density)
}
