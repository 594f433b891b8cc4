// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the Prometheus instrumentation for the crowd
// monitoring pipeline. Collectors self-register via promauto; the HTTP
// layer serves them with promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AreaDensity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crowdwatch_area_density_percent",
		Help: "Latest crowd density per area as percent of capacity",
	}, []string{"area"})

	AreaLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crowdwatch_area_level",
		Help: "Current threshold level per area (0 normal, 1 warning, 2 critical, 3 emergency)",
	}, []string{"area"})

	ReadingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crowdwatch_readings_total",
		Help: "Total number of density readings accepted",
	})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdwatch_alerts_total",
		Help: "Total number of alerts raised by severity",
	}, []string{"severity"})

	EmergencyActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crowdwatch_emergency_active",
		Help: "Whether emergency mode is active (1) or not (0)",
	})

	StreamClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crowdwatch_stream_clients",
		Help: "Currently connected streaming clients by transport",
	}, []string{"transport"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdwatch_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crowdwatch_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdwatch_rate_limited_total",
		Help: "Requests rejected by the rate limiter by surface",
	}, []string{"surface"})
)
