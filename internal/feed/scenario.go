// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package feed

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"yatra.is/crowdwatch/internal/health"
	"yatra.is/crowdwatch/internal/logging"
	"yatra.is/crowdwatch/internal/monitor"
)

// Scenario is a scripted density sequence, loaded from YAML. Used in drills
// and demos where a surge must unfold on cue rather than by random walk.
type Scenario struct {
	Name  string `yaml:"name"`
	Loop  bool   `yaml:"loop"`
	Steps []Step `yaml:"steps"`
}

// Step is one tick of a scenario: the densities to report, and how long to
// hold them before the next step.
type Step struct {
	Hold      time.Duration
	Densities map[string]float64
}

// UnmarshalYAML accepts hold as a duration string ("30s", "2m").
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Hold      string             `yaml:"hold"`
		Densities map[string]float64 `yaml:"densities"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Hold != "" {
		d, err := time.ParseDuration(raw.Hold)
		if err != nil {
			return fmt.Errorf("invalid hold %q: %w", raw.Hold, err)
		}
		s.Hold = d
	}
	s.Densities = raw.Densities
	return nil
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	for i, step := range sc.Steps {
		if len(step.Densities) == 0 {
			return nil, fmt.Errorf("scenario %s step %d has no densities", path, i)
		}
		for areaID, d := range step.Densities {
			if d < 0 {
				return nil, fmt.Errorf("scenario %s step %d: negative density for %s", path, i, areaID)
			}
		}
	}
	return &sc, nil
}

// Replayer feeds a scripted scenario into the monitor.
type Replayer struct {
	mon      *monitor.Monitor
	scenario *Scenario
	interval time.Duration
	health   *health.Tracker
	logger   *logging.Logger
}

// NewReplayer creates a replayer. interval is the default hold when a step
// does not set one.
func NewReplayer(mon *monitor.Monitor, sc *Scenario, interval time.Duration, tracker *health.Tracker, logger *logging.Logger) *Replayer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = logging.WithComponent("feed")
	}
	return &Replayer{mon: mon, scenario: sc, interval: interval, health: tracker, logger: logger}
}

// Run plays the scenario until it ends or the context is canceled. Looping
// scenarios restart from the first step.
func (r *Replayer) Run(ctx context.Context) {
	r.logger.Info("Scenario replay started", "scenario", r.scenario.Name, "steps", len(r.scenario.Steps), "loop", r.scenario.Loop)
	for {
		for _, step := range r.scenario.Steps {
			r.apply(step, time.Now())

			hold := step.Hold
			if hold <= 0 {
				hold = r.interval
			}
			select {
			case <-time.After(hold):
			case <-ctx.Done():
				return
			}
		}
		if !r.scenario.Loop {
			r.logger.Info("Scenario replay finished", "scenario", r.scenario.Name)
			return
		}
	}
}

func (r *Replayer) apply(step Step, now time.Time) {
	for areaID, density := range step.Densities {
		err := r.mon.Record(monitor.Reading{AreaID: areaID, Timestamp: now, Density: density})
		if err != nil && r.health != nil {
			r.health.RecordDataStreamError(err, areaID)
		}
	}
}
