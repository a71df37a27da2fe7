package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/certledger/pkg/models"
)

// RecordDetailHandler handles GET /v1/records/{recordID}.
// Returns the full field projection of one version record, parent id first.
func (s *Server) RecordDetailHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.certs.GetDetail(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rec})
}

// RecordStatusHandler handles PUT /v1/records/{recordID}/status.
func (s *Server) RecordStatusHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.certs.UpdateStatus(r.Context(), ident.Address, chi.URLParam(r, "recordID"), models.Status(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecordLinksHandler handles PUT /v1/records/{recordID}/links.
// Private certificates only; caller must be the bound user.
func (s *Server) RecordLinksHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		JSONLink     string `json:"json_link"`
		SoftCopyLink string `json:"soft_copy_link"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.certs.UpdateDataLinks(r.Context(), ident.Address, chi.URLParam(r, "recordID"), req.JSONLink, req.SoftCopyLink)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
