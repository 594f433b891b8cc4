// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"net/http"

	"yatra.is/crowdwatch/internal/threshold"
)

// handleGetConfig returns one or all threshold configurations.
// GET /api/v1/config?areaId=
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	areaID := r.URL.Query().Get("areaId")
	if areaID == "" {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"data": s.thresholds.All()})
		return
	}

	cfg, err := s.thresholds.Get(areaID)
	if err != nil {
		WriteKindError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"data": cfg})
}

type saveConfigRequest struct {
	Config  threshold.Config `json:"config"`
	AdminID string           `json:"adminId"`
	Reason  string           `json:"reason"`
}

// handleSaveConfig validates and stores a threshold configuration.
// POST /api/v1/config
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var req saveConfigRequest
	if !BindJSON(w, r, &req) {
		return
	}
	if req.Config.AreaID == "" {
		WriteError(w, http.StatusBadRequest, ErrAreaRequired)
		return
	}

	saved, err := s.thresholds.Save(req.Config, req.AdminID, req.Reason)
	if err != nil {
		WriteKindError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"data": saved})
}

// handleDeleteConfig reverts an area to the system default thresholds.
// DELETE /api/v1/config?areaId=&adminId=&reason=
func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	areaID := q.Get("areaId")
	if areaID == "" {
		WriteError(w, http.StatusBadRequest, ErrAreaRequired)
		return
	}

	if err := s.thresholds.Delete(areaID, q.Get("adminId"), q.Get("reason")); err != nil {
		WriteKindError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
