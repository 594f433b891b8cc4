// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"yatra.is/crowdwatch/internal/config"
	"yatra.is/crowdwatch/internal/monitor"
	"yatra.is/crowdwatch/internal/threshold"
)

type areaStatus struct {
	config.Area
	Level   threshold.Level  `json:"level"`
	Reading *monitor.Reading `json:"reading,omitempty"`
}

// handleListAreas returns the area registry with each area's latest reading
// and current threshold level.
// GET /api/v1/areas
func (s *Server) handleListAreas(w http.ResponseWriter, r *http.Request) {
	areas := s.monitor.Areas()
	latest := s.monitor.Snapshot()
	out := make([]areaStatus, 0, len(areas))
	for _, a := range areas {
		st := areaStatus{Area: a, Level: s.engine.CurrentLevel(a.ID)}
		if reading, ok := latest[a.ID]; ok {
			st.Reading = &reading
		}
		out = append(out, st)
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"data": out})
}

// handleGetArea returns one area with its recent in-memory readings.
// GET /api/v1/areas/{id}?recent=60
func (s *Server) handleGetArea(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	area, ok := s.monitor.Area(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown area: "+id)
		return
	}

	recent := 60
	if raw := r.URL.Query().Get("recent"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil && val > 0 {
			recent = val
		}
	}

	st := areaStatus{Area: area, Level: s.engine.CurrentLevel(id)}
	if reading, ok := s.monitor.Latest(id); ok {
		st.Reading = &reading
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":   st,
		"recent": s.monitor.Recent(id, recent),
		"alerts": s.engine.History(id, 20),
	})
}

// handleHistory returns persisted density summaries for charting. With
// peak=true it instead ranks areas by their highest observed density in the
// window.
// GET /api/v1/history?areaId=&from=&to=&limit=&offset=&peak=
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.historyDB == nil {
		WriteError(w, http.StatusServiceUnavailable, "history persistence is disabled")
		return
	}
	q := r.URL.Query()

	to := time.Now()
	from := to.Add(-24 * time.Hour)
	var err error
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			WriteError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			WriteError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
	}

	limit := 500
	if raw := q.Get("limit"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil && val > 0 && val <= 5000 {
			limit = val
		}
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil && val >= 0 {
			offset = val
		}
	}

	if q.Get("peak") == "true" {
		rows, err := s.historyDB.PeakAreas(from, to, limit)
		if err != nil {
			s.tracker.RecordError("storage", err)
			WriteError(w, http.StatusInternalServerError, "history query failed")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
		return
	}

	rows, err := s.historyDB.AreaHistory(q.Get("areaId"), from, to, limit, offset)
	if err != nil {
		s.tracker.RecordError("storage", err)
		WriteError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"data": rows})
}
