// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"fmt"
	"net/http"
	"time"

	"yatra.is/crowdwatch/internal/health"
)

type healthResponse struct {
	Status    health.ServiceStatus            `json:"status"`
	Uptime    string                          `json:"uptime"`
	Timestamp time.Time                       `json:"timestamp"`
	Services  map[string]health.ServiceStatus `json:"services"`
	Errors    health.Stats                    `json:"errors"`
	Emergency bool                            `json:"emergency_active"`
	Alerts    []string                        `json:"alerts"`
}

// handleHealth reports accumulated-error derived health. Unauthenticated so
// external monitoring can poll it.
// GET /api/v1/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.tracker.Stats()

	services := map[string]health.ServiceStatus{
		"density_feed": s.tracker.StatusFor(health.CategoryDataStream),
		"streaming":    s.tracker.StatusFor(health.CategoryStreamSend),
		"storage":      s.tracker.StatusFor(health.CategoryStorage),
		"system":       s.tracker.StatusFor(health.CategorySystem),
	}

	overall := health.StatusOperational
	for _, st := range services {
		if st == health.StatusDown {
			overall = health.StatusDown
			break
		}
		if st == health.StatusDegraded {
			overall = health.StatusDegraded
		}
	}
	if stats.DegradedMode && overall == health.StatusOperational {
		overall = health.StatusDegraded
	}

	var alerts []string
	if stats.DegradedMode {
		alerts = append(alerts, "error rate exceeded: degraded mode active")
	}
	for name, st := range services {
		if st != health.StatusOperational {
			alerts = append(alerts, fmt.Sprintf("service %s is %s", name, st))
		}
	}
	if active := s.engine.ActiveAlerts(); len(active) > 0 {
		alerts = append(alerts, fmt.Sprintf("%d unresolved crowd alerts", len(active)))
	}
	emergencyActive := s.emergency.State() != nil
	if emergencyActive {
		alerts = append(alerts, "emergency mode is active")
	}

	status := http.StatusOK
	if overall == health.StatusDown {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, healthResponse{
		Status:    overall,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
		Services:  services,
		Errors:    stats,
		Emergency: emergencyActive,
		Alerts:    alerts,
	})
}
