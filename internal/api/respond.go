// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"encoding/json"
	"net/http"

	"yatra.is/crowdwatch/internal/errors"
	"yatra.is/crowdwatch/internal/logging"
)

// Common error messages.
const (
	ErrInvalidBody  = "Invalid request body"
	ErrAreaRequired = "areaId is required"
	ErrUnauthorized = "Unauthorized"
	ErrForbidden    = "Forbidden"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error("Failed to encode JSON response: " + err.Error())
	}
}

// WriteError writes a JSON error envelope.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}

// WriteKindError maps a kinded error onto its HTTP status.
func WriteKindError(w http.ResponseWriter, err error) {
	WriteError(w, errors.GetKind(err).HTTPStatus(), err.Error())
}

// BindJSON decodes JSON from the request body into dest. Returns false if
// decoding failed (error response already sent).
func BindJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		WriteError(w, http.StatusBadRequest, ErrInvalidBody)
		return false
	}
	return true
}

// Pagination describes one page of a list response.
type Pagination struct {
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	Total      int  `json:"total"`
	HasMore    bool `json:"hasMore"`
	NextOffset *int `json:"nextOffset"`
	PrevOffset *int `json:"prevOffset"`
}

// NewPagination computes the page envelope for a query that matched total
// entries.
func NewPagination(limit, offset, total int) Pagination {
	p := Pagination{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	}
	if offset+limit < total {
		p.HasMore = true
		next := offset + limit
		p.NextOffset = &next
	}
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		p.PrevOffset = &prev
	}
	return p
}
