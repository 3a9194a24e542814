package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/enginerepair/engshopsync/internal/compat"
)

type bootstrapRequest struct {
	SchemaVersion *int    `json:"schema_version"`
	SchemaHash    *string `json:"schema_hash"`
}

type bootstrapResponse struct {
	Action        string `json:"action"`
	SchemaVersion int    `json:"schema_version"`
	SchemaHash    string `json:"schema_hash"`
}

// Bootstrap implements `POST /v1/sync/bootstrap` (spec.md §4.9, §6):
// the first call a client makes each session, deciding whether it may
// proceed, must migrate, must rebuild its local replica, or is
// rejected for being newer than the server knows how to serve.
func (s *Server) Bootstrap(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "validation", "invalid JSON body")
			return
		}
	}

	decision, err := s.Compat.Decide(r.Context(), compat.ClientState{
		Version: req.SchemaVersion,
		Hash:    req.SchemaHash,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	status := http.StatusOK
	if decision.Action == compat.ActionReject {
		status = http.StatusConflict
	}
	writeJSON(w, status, bootstrapResponse{
		Action:        string(decision.Action),
		SchemaVersion: decision.Version,
		SchemaHash:    decision.Hash,
	})
}
