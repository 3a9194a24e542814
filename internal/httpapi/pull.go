package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/enginerepair/engshopsync/internal/pullservice"
)

type pullRequest struct {
	ClientID string `json:"client_id"`
	SinceSeq *int64 `json:"since_seq,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type pullEntry struct {
	Seq       int64          `json:"seq"`
	Table     string         `json:"table"`
	RowID     string         `json:"row_id"`
	Op        string         `json:"op"`
	Payload   map[string]any `json:"payload"`
	CreatedAt int64          `json:"created_at"`
}

type pullResponse struct {
	OK      bool        `json:"ok"`
	Entries []pullEntry `json:"entries"`
	NextSeq int64       `json:"next_seq"`
	HasMore bool        `json:"has_more"`
}

// Pull_ implements `POST /sync/pull` (spec.md §4.7, §6).
func (s *Server) Pull_(w http.ResponseWriter, r *http.Request) {
	var req pullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}
	if req.ClientID == "" {
		writeError(w, r, http.StatusBadRequest, "validation", "client_id is required")
		return
	}

	resp, err := s.Pull.Pull(r.Context(), pullservice.Request{
		ClientID: req.ClientID,
		SinceSeq: req.SinceSeq,
		Limit:    req.Limit,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	entries := make([]pullEntry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entries = append(entries, pullEntry{
			Seq:       e.Seq,
			Table:     string(e.Table),
			RowID:     e.RowID,
			Op:        string(e.Op),
			Payload:   map[string]any(e.Payload),
			CreatedAt: e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, pullResponse{
		OK:      true,
		Entries: entries,
		NextSeq: resp.NextSeq,
		HasMore: resp.HasMore,
	})
}
