// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package feed produces density readings for the monitor when no real
// sensor integration is wired in. It runs either a seeded random-walk
// simulation shaped by area type, or a scripted scenario replayed from a
// YAML file.
package feed

import (
	"context"
	"math/rand"
	"time"

	"yatra.is/crowdwatch/internal/config"
	"yatra.is/crowdwatch/internal/health"
	"yatra.is/crowdwatch/internal/logging"
	"yatra.is/crowdwatch/internal/monitor"
)

// typeProfile bounds the simulated density (percent of capacity) by area
// type. Entry points swing harder than halls or ghats.
type typeProfile struct {
	min, max float64
	step     float64 // max random-walk movement per tick
}

var profiles = map[string]typeProfile{
	"gate": {min: 10, max: 95, step: 8},
	"hall": {min: 15, max: 90, step: 5},
	"exit": {min: 5, max: 80, step: 7},
	"ghat": {min: 5, max: 85, step: 4},
}

var defaultProfile = typeProfile{min: 5, max: 90, step: 5}

// Feed drives the monitor with simulated readings.
type Feed struct {
	mon      *monitor.Monitor
	areas    []config.Area
	interval time.Duration
	rng      *rand.Rand
	health   *health.Tracker
	logger   *logging.Logger

	current map[string]float64
}

// New creates a simulated feed. A zero seed derives one from the clock.
func New(mon *monitor.Monitor, areas []config.Area, interval time.Duration, seed int64, tracker *health.Tracker, logger *logging.Logger) *Feed {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = logging.WithComponent("feed")
	}
	return &Feed{
		mon:      mon,
		areas:    areas,
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
		health:   tracker,
		logger:   logger,
		current:  make(map[string]float64),
	}
}

// Run emits one round of readings per tick until the context is canceled.
func (f *Feed) Run(ctx context.Context) {
	f.logger.Info("Simulated density feed started", "areas", len(f.areas), "interval", f.interval)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.Tick(time.Now())
	for {
		select {
		case <-ticker.C:
			f.Tick(time.Now())
		case <-ctx.Done():
			f.logger.Info("Simulated density feed stopped")
			return
		}
	}
}

// Tick generates one reading per area at the given timestamp.
func (f *Feed) Tick(now time.Time) {
	for _, area := range f.areas {
		density := f.next(area, now)
		err := f.mon.Record(monitor.Reading{AreaID: area.ID, Timestamp: now, Density: density})
		if err != nil {
			if f.health != nil {
				f.health.RecordDataStreamError(err, area.ID)
			}
			continue
		}
	}
}

// next advances the area's random walk one step, pulled toward a
// time-of-day baseline so mornings and evenings peak the way darshan
// queues do.
func (f *Feed) next(area config.Area, now time.Time) float64 {
	p, ok := profiles[area.Type]
	if !ok {
		p = defaultProfile
	}

	cur, seen := f.current[area.ID]
	if !seen {
		cur = p.min + f.rng.Float64()*(p.max-p.min)*0.5
	}

	target := baseline(now, p)
	drift := (target - cur) * 0.1
	step := (f.rng.Float64()*2 - 1) * p.step
	cur += drift + step

	if cur < p.min {
		cur = p.min
	}
	if cur > p.max {
		cur = p.max
	}
	f.current[area.ID] = cur
	return cur
}

// baseline is the diurnal crowd curve: quiet overnight, a morning darshan
// peak, a dip midday, and an evening aarti peak.
func baseline(now time.Time, p typeProfile) float64 {
	span := p.max - p.min
	switch h := now.Hour(); {
	case h < 5:
		return p.min + span*0.1
	case h < 9:
		return p.min + span*0.8
	case h < 16:
		return p.min + span*0.4
	case h < 21:
		return p.min + span*0.9
	default:
		return p.min + span*0.3
	}
}
