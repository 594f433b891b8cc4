// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"
	"strconv"
)

// handleAuditQuery returns recent audit entries, newest first.
// GET /api/v1/audit?limit=100
func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil || s.auditLog.Store() == nil {
		WriteError(w, http.StatusServiceUnavailable, "audit logging is disabled")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil && val > 0 && val <= 1000 {
			limit = val
		}
	}

	entries, err := s.auditLog.Store().Recent(limit)
	if err != nil {
		s.tracker.RecordError("storage", err)
		WriteError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"data": entries})
}
