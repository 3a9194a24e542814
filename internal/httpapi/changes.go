package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/enginerepair/engshopsync/internal/apperr"
	"github.com/enginerepair/engshopsync/internal/auth"
	"github.com/enginerepair/engshopsync/internal/permissions"
	"github.com/enginerepair/engshopsync/internal/workflow"
)

type changeDecisionRequest struct {
	ChangeRequestID string `json:"id"`
	Note            string `json:"note,omitempty"`
}

type changeDecisionResponse struct {
	OK              bool   `json:"ok"`
	ChangeRequestID string `json:"change_request_id"`
}

func (s *Server) reviewer(r *http.Request) workflow.Party {
	return workflow.Party{UserID: auth.UserID(r.Context()), Username: auth.Username(r.Context())}
}

func (s *Server) requireApprover(w http.ResponseWriter, r *http.Request) bool {
	ok, err := permissions.Has(r.Context(), s.DB, auth.UserID(r.Context()), permissions.CodeApproveChanges)
	if err != nil {
		writeAppError(w, r, err)
		return false
	}
	if !ok {
		writeAppError(w, r, apperr.Forbidden("missing approve_changes permission"))
		return false
	}
	return true
}

// ChangesApply implements `POST /changes/apply` (spec.md §4.6, §6): a
// reviewer holding approve_changes accepts a pending change request,
// applying it through the sink with the original author's identity.
func (s *Server) ChangesApply(w http.ResponseWriter, r *http.Request) {
	var req changeDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}
	if req.ChangeRequestID == "" {
		writeError(w, r, http.StatusBadRequest, "validation", "id is required")
		return
	}
	if !s.requireApprover(w, r) {
		return
	}

	if err := workflow.Apply(r.Context(), s.DB, req.ChangeRequestID, s.reviewer(r)); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changeDecisionResponse{OK: true, ChangeRequestID: req.ChangeRequestID})
}

// ChangesReject implements `POST /changes/reject` (spec.md §4.6, §6).
func (s *Server) ChangesReject(w http.ResponseWriter, r *http.Request) {
	var req changeDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}
	if req.ChangeRequestID == "" {
		writeError(w, r, http.StatusBadRequest, "validation", "id is required")
		return
	}
	if !s.requireApprover(w, r) {
		return
	}

	if err := workflow.Reject(r.Context(), s.DB, req.ChangeRequestID, s.reviewer(r), req.Note); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changeDecisionResponse{OK: true, ChangeRequestID: req.ChangeRequestID})
}
