package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/org/certledger/internal/cert"
	"github.com/org/certledger/pkg/models"
)

// CertCreateHandler handles POST /v1/certificates.
func (s *Server) CertCreateHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Family         string `json:"family"`
		Title          string `json:"title"`
		ActivationCode string `json:"activation_code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.certs.Create(r.Context(), ident.Address, models.Family(req.Family), req.Title, req.ActivationCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": created})
}

// CertListHandler handles GET /v1/certificates?family=&index=.
// With index set it returns the single certificate at that 0-based position
// of the family's creation order.
func (s *Server) CertListHandler(w http.ResponseWriter, r *http.Request) {
	family := models.Family(r.URL.Query().Get("family"))

	if idx := r.URL.Query().Get("index"); idx != "" {
		i, err := strconv.Atoi(idx)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid index")
			return
		}
		c, err := s.certs.GetByIndex(r.Context(), family, i)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": c})
		return
	}

	certs, err := s.certs.List(r.Context(), family)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": certs})
}

// CertGetHandler handles GET /v1/certificates/{id}.
func (s *Server) CertGetHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.certs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": c})
}

// CertAddVersionHandler handles POST /v1/certificates/{id}/versions.
func (s *Server) CertAddVersionHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		JSONHash     string `json:"json_hash"`
		SoftCopyHash string `json:"soft_copy_hash"`
		StorageLink  string `json:"storage_link"`
		StartDate    int64  `json:"start_date"`
		EndDate      int64  `json:"end_date"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.certs.AddVersion(r.Context(), ident.Address, chi.URLParam(r, "id"), cert.AddVersionInput{
		JSONHash:     req.JSONHash,
		SoftCopyHash: req.SoftCopyHash,
		StorageLink:  req.StorageLink,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"record_id":   rec.ID,
			"version":     rec.Version,
			"deploy_time": rec.DeployTime,
		},
	})
}

// CertListVersionsHandler handles GET /v1/certificates/{id}/versions.
func (s *Server) CertListVersionsHandler(w http.ResponseWriter, r *http.Request) {
	recs, err := s.certs.ListVersions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": recs})
}

// CertCurrentVersionHandler handles GET /v1/certificates/{id}/versions/current.
func (s *Server) CertCurrentVersionHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.certs.GetCurrentVersion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rec})
}

// CertVersionByNumberHandler handles GET /v1/certificates/{id}/versions/{n}.
// Version numbers are 1-based.
func (s *Server) CertVersionByNumberHandler(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		writeDomainError(w, models.ErrInvalidVersionNumber)
		return
	}
	rec, err := s.certs.GetVersionByNumber(r.Context(), chi.URLParam(r, "id"), n)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rec})
}

// CertActivateHandler handles POST /v1/certificates/{id}/activate.
func (s *Server) CertActivateHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		ActivationCode string `json:"activation_code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	activated, err := s.certs.Activate(r.Context(), ident.Address, chi.URLParam(r, "id"), req.ActivationCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"certificate_id": activated.ID,
			"user":           activated.User,
		},
	})
}
