// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"

	"yatra.is/crowdwatch/internal/emergency"
	"yatra.is/crowdwatch/internal/metrics"
)

// handleEmergencyState returns the current emergency state.
// GET /api/v1/emergency
func (s *Server) handleEmergencyState(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{"data": emergencyPayload(s.emergency.State())})
}

// handleEmergencyActivate manually activates emergency mode.
// POST /api/v1/emergency/activate {areaId, adminId, reason}
func (s *Server) handleEmergencyActivate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AreaID  string `json:"areaId"`
		AdminID string `json:"adminId"`
		Reason  string `json:"reason"`
	}
	if !BindJSON(w, r, &req) {
		return
	}
	if req.AreaID == "" {
		WriteError(w, http.StatusBadRequest, ErrAreaRequired)
		return
	}
	if req.AdminID == "" {
		WriteError(w, http.StatusBadRequest, "adminId is required")
		return
	}

	st, err := s.emergency.Activate(req.AreaID, emergency.TriggerManual, req.AdminID)
	if err != nil {
		WriteKindError(w, err)
		return
	}
	metrics.EmergencyActive.Set(1)
	WriteJSON(w, http.StatusOK, map[string]interface{}{"data": st})
}

// handleEmergencyDeactivate clears emergency mode.
// POST /api/v1/emergency/deactivate {adminId}
func (s *Server) handleEmergencyDeactivate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdminID string `json:"adminId"`
	}
	if !BindJSON(w, r, &req) {
		return
	}
	if req.AdminID == "" {
		WriteError(w, http.StatusBadRequest, "adminId is required")
		return
	}

	if err := s.emergency.Deactivate(req.AdminID); err != nil {
		WriteKindError(w, err)
		return
	}
	metrics.EmergencyActive.Set(0)
	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
