package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/enginerepair/engshopsync/internal/auth"
	"github.com/enginerepair/engshopsync/internal/model"
	"github.com/enginerepair/engshopsync/internal/pushservice"
)

// pushRowChange mirrors one element of the wire `upserts`/`deletes`
// arrays (spec.md §6): a table name paired with full post-image rows.
type pushRowChange struct {
	Table string           `json:"table"`
	Rows  []map[string]any `json:"rows"`
}

type pushRequest struct {
	ClientID string          `json:"client_id"`
	Upserts  []pushRowChange `json:"upserts"`
	Deletes  []pushRowChange `json:"deletes"`
}

type pushOutcome struct {
	Table           string `json:"table"`
	RowID           string `json:"row_id,omitempty"`
	ChangeRequestID string `json:"change_request_id,omitempty"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

type pushResponse struct {
	OK      bool          `json:"ok"`
	Applied int           `json:"applied"`
	Queued  []pushOutcome `json:"queued"`
	Errors  []pushOutcome `json:"errors"`
}

// Push_ implements `POST /sync/push` (spec.md §4.5, §6). Named with a
// trailing underscore to avoid colliding with the pushservice package
// name in this file's scope.
func (s *Server) Push_(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}
	if req.ClientID == "" {
		writeError(w, r, http.StatusBadRequest, "validation", "client_id is required")
		return
	}

	actor := pushservice.Actor{
		UserID:   auth.UserID(r.Context()),
		Username: auth.Username(r.Context()),
		Role:     auth.Role(r.Context()),
	}

	outcomes, err := s.Push.Push(r.Context(), actor, pushservice.Request{
		ClientID: req.ClientID,
		Upserts:  toRowChanges(req.Upserts),
		Deletes:  toRowChanges(req.Deletes),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	resp := pushResponse{OK: true, Queued: []pushOutcome{}, Errors: []pushOutcome{}}
	for _, oc := range outcomes {
		switch {
		case oc.Err != nil:
			resp.Errors = append(resp.Errors, pushOutcome{
				Table: string(oc.Table), RowID: oc.RowID,
				Code: string(oc.Err.Code), Message: oc.Err.Message,
			})
		case oc.ChangeRequestID != "":
			resp.Queued = append(resp.Queued, pushOutcome{
				Table: string(oc.Table), RowID: oc.RowID, ChangeRequestID: oc.ChangeRequestID,
			})
		case oc.Applied:
			resp.Applied++
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func toRowChanges(in []pushRowChange) []model.RowChange {
	out := make([]model.RowChange, 0, len(in))
	for _, c := range in {
		rows := make([]model.Payload, 0, len(c.Rows))
		for _, row := range c.Rows {
			rows = append(rows, model.Payload(row))
		}
		out = append(out, model.RowChange{Table: model.Table(c.Table), Rows: rows})
	}
	return out
}
