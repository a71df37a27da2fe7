package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/certledger/pkg/models"
)

// RegistryAddVersionHandler handles POST /v1/registry/{family}/versions.
func (s *Server) RegistryAddVersionHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	family := models.Family(chi.URLParam(r, "family"))

	var req struct {
		FactoryID string `json:"factory_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fv, err := s.registry.AddFactoryVersion(r.Context(), ident.Address, family, req.FactoryID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": fv})
}

// RegistrySetCurrentHandler handles PUT /v1/registry/{family}/current.
func (s *Server) RegistrySetCurrentHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	family := models.Family(chi.URLParam(r, "family"))

	var req struct {
		Index *int `json:"index"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Index == nil {
		writeError(w, http.StatusBadRequest, "index required")
		return
	}

	if err := s.registry.SetCurrentVersion(r.Context(), ident.Address, family, *req.Index); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RegistryGetCurrentHandler handles GET /v1/registry/{family}/current.
func (s *Server) RegistryGetCurrentHandler(w http.ResponseWriter, r *http.Request) {
	family := models.Family(chi.URLParam(r, "family"))

	fv, err := s.registry.GetCurrent(r.Context(), family)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": fv})
}

// RegistryListVersionsHandler handles GET /v1/registry/{family}/versions.
func (s *Server) RegistryListVersionsHandler(w http.ResponseWriter, r *http.Request) {
	family := models.Family(chi.URLParam(r, "family"))

	state, err := s.registry.GetAll(r.Context(), family)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": state})
}
