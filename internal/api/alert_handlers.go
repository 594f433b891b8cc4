// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"yatra.is/crowdwatch/internal/alerting"
	"yatra.is/crowdwatch/internal/threshold"
)

const (
	defaultAlertPageLimit = 50
	maxAlertPageLimit     = 100
)

// handleListAlerts returns one page of filtered alert history.
// GET /api/v1/alerts?limit=&offset=&areaId=&severity=&acknowledged=&resolved=
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultAlertPageLimit
	if l := q.Get("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val < 1 || val > maxAlertPageLimit {
			WriteError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = val
	}

	offset := 0
	if o := q.Get("offset"); o != "" {
		val, err := strconv.Atoi(o)
		if err != nil || val < 0 {
			WriteError(w, http.StatusBadRequest, "offset must be >= 0")
			return
		}
		offset = val
	}

	filter := alerting.Filter{
		AreaID: q.Get("areaId"),
		Limit:  limit,
		Offset: offset,
	}
	if sev := q.Get("severity"); sev != "" {
		lvl := threshold.Level(sev)
		if !lvl.Valid() {
			WriteError(w, http.StatusBadRequest, "unknown severity: "+sev)
			return
		}
		filter.Severity = lvl
	}
	var err error
	if filter.Acknowledged, err = parseBoolFilter(q.Get("acknowledged")); err != nil {
		WriteError(w, http.StatusBadRequest, "acknowledged must be true or false")
		return
	}
	if filter.Resolved, err = parseBoolFilter(q.Get("resolved")); err != nil {
		WriteError(w, http.StatusBadRequest, "resolved must be true or false")
		return
	}

	page, total := s.engine.Query(filter)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       page,
		"pagination": NewPagination(limit, offset, total),
	})
}

func parseBoolFilter(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// handleAlertStats returns aggregate alert counts.
// POST /api/v1/alerts/stats {areaId}
func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AreaID string `json:"areaId"`
	}
	if !BindJSON(w, r, &req) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"data": s.engine.AreaStats(req.AreaID)})
}

// handleAcknowledgeAlert marks an alert acknowledged exactly once.
// POST /api/v1/alerts/{id}/ack {authorityId}
func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]

	var req struct {
		AuthorityID string `json:"authorityId"`
	}
	if !BindJSON(w, r, &req) {
		return
	}
	if req.AuthorityID == "" {
		WriteError(w, http.StatusBadRequest, "authorityId is required")
		return
	}

	acked, err := s.engine.Acknowledge(alertID, req.AuthorityID)
	if err != nil {
		WriteKindError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"data": acked})
}
