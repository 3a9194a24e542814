package httpapi

import (
	"net/http"

	"github.com/enginerepair/engshopsync/internal/compat"
	"github.com/enginerepair/engshopsync/internal/schema"
)

type schemaResponse struct {
	OK      bool                              `json:"ok"`
	Version int                               `json:"version"`
	Hash    string                            `json:"hash"`
	Tables  map[string]schema.TableDescriptor `json:"tables"`
}

// GetSchema implements `GET /sync/schema`: an unauthenticated
// descriptor a client can fetch before it even has a session, so it
// can decide locally whether to attempt bootstrap at all (spec.md
// §4.3, §4.9). The normalized per-table descriptors are served
// alongside the hash so a client can diff structure, not just detect
// that *something* changed.
func (s *Server) GetSchema(w http.ResponseWriter, r *http.Request) {
	snap, err := schema.Introspect(r.Context(), s.DB)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	hash, err := schema.Hash(snap)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	normalized := schema.Normalize(snap)
	writeJSON(w, http.StatusOK, schemaResponse{
		OK:      true,
		Version: compat.CurrentVersion,
		Hash:    hash,
		Tables:  normalized.Tables,
	})
}
