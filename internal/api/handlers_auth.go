package api

import (
	"net/http"
)

// IdentityCreateHandler handles POST /v1/auth/identity.
// Anyone may create an identity; the bearer token is returned once.
func (s *Server) IdentityCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ident, token, err := s.identities.CreateIdentity(r.Context(), req.DisplayName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":      ident.Address,
		"display_name": ident.DisplayName,
		"token":        token,
	})
}

// IdentitySelfHandler handles GET /v1/auth/identity/self.
func (s *Server) IdentitySelfHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": ident})
}
