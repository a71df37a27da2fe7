package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/org/certledger/internal/storage"
	"github.com/org/certledger/pkg/models"
)

// InitHandler handles POST /v1/sys/init.
// One-time: creates the master registry owner identity and returns its
// bearer token. The token is shown exactly once.
func (s *Server) InitHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	initialized, err := s.store.IsInitialized(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if initialized {
		writeError(w, http.StatusBadRequest, "ledger is already initialized")
		return
	}

	var req struct {
		DisplayName string `json:"display_name"`
	}
	req.DisplayName = "registry-owner"
	decodeJSON(r, &req) //nolint:errcheck

	ident, token, err := s.identities.CreateIdentity(ctx, req.DisplayName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create owner identity")
		return
	}
	if err := s.store.InitLedger(ctx, ident.Address, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist init data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"initialized": true,
		"owner":       ident.Address,
		"owner_token": token,
	})
}

// HealthHandler handles GET /v1/sys/health.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	initialized, err := s.store.IsInitialized(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Refresh domain gauges while we're here.
	for _, f := range []models.Family{models.FamilyBroadcast, models.FamilyPublic, models.FamilyPrivate} {
		if n, err := s.store.CountCertificates(ctx, f); err == nil {
			certificatesTotal.WithLabelValues(string(f)).Set(float64(n))
		}
	}
	if n, err := s.store.CountActivated(ctx); err == nil {
		activationsTotal.Set(float64(n))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"initialized": initialized,
		"version":     "1.0.0",
	})
}

// EventLogHandler handles GET /v1/sys/events.
// The event log is readable by the registry owner only.
func (s *Server) EventLogHandler(w http.ResponseWriter, r *http.Request) {
	ident := identityFromCtx(r.Context())
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	owner, err := s.store.GetLedgerOwner(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ident.Address != owner {
		writeError(w, http.StatusForbidden, "permission denied")
		return
	}

	q := r.URL.Query()
	filter := storage.EventFilter{
		Name:     q.Get("name"),
		EntityID: q.Get("entity"),
		Limit:    100,
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil {
			filter.Offset = n
		}
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err == nil {
			filter.Since = &t
		}
	}

	events, err := s.events.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": events})
}
