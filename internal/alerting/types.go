package alerting

import (
	"time"

	"yatra.is/crowdwatch/internal/threshold"
)

// EventTypeThresholdViolation is the only alert type the engine currently
// emits; the field exists so acknowledgment tooling can distinguish future
// alert sources.
const EventTypeThresholdViolation = "threshold_violation"

// AlertEvent represents one threshold crossing for an area.
type AlertEvent struct {
	ID        string          `json:"id"`
	AreaID    string          `json:"area_id"`
	Timestamp time.Time       `json:"timestamp"`
	Severity  threshold.Level `json:"severity"`
	Density   float64         `json:"density"`
	Threshold float64         `json:"threshold"` // the value that was crossed
	Type      string          `json:"type"`

	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`

	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Stats are aggregate alert counts for the dashboard.
type Stats struct {
	Total        int                     `json:"total"`
	Active       int                     `json:"active"`
	Acknowledged int                     `json:"acknowledged"`
	Resolved     int                     `json:"resolved"`
	BySeverity   map[threshold.Level]int `json:"by_severity"`
}

// Filter selects alerts for history queries. Nil boolean fields match both
// states.
type Filter struct {
	AreaID       string
	Severity     threshold.Level
	Acknowledged *bool
	Resolved     *bool
	Limit        int
	Offset       int
}
