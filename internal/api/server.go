package api

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/certledger/internal/auth"
	"github.com/org/certledger/internal/cert"
	"github.com/org/certledger/internal/eventlog"
	"github.com/org/certledger/internal/registry"
	"github.com/org/certledger/internal/storage"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string
	TLSCertFile string
	TLSKeyFile  string
	DBUrl       string
	MigrationsDir string
}

// Server is the API server.
type Server struct {
	store      storage.Store
	identities *auth.IdentityService
	registry   *registry.Registry
	certs      *cert.Engine
	events     *eventlog.Recorder
	cfg        Config
	httpSrv    *http.Server
}

// NewServer creates a fully wired Server.
func NewServer(store storage.Store, cfg Config) *Server {
	identitySvc := auth.NewIdentityService(store)
	events := eventlog.NewRecorder(store)
	reg := registry.New(store, events)
	engine := cert.NewEngine(store, reg, events)

	return &Server{
		store:      store,
		identities: identitySvc,
		registry:   reg,
		certs:      engine,
		events:     events,
		cfg:        cfg,
	}
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(newRateLimiter(100, 200).middleware)
	r.Use(logMiddleware)

	// Prometheus metrics (unauthenticated)
	r.Handle("/metrics", MetricsHandler())

	// Public routes (no auth required)
	r.Group(func(r chi.Router) {
		r.Get("/v1/sys/health", s.HealthHandler)
		r.Post("/v1/sys/init", s.InitHandler)
		r.Post("/v1/auth/identity", s.IdentityCreateHandler)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.identities))

		// Sys
		r.Get("/v1/sys/events", s.EventLogHandler)

		// Identity
		r.Get("/v1/auth/identity/self", s.IdentitySelfHandler)

		// Master registry
		r.Post("/v1/registry/{family}/versions", s.RegistryAddVersionHandler)
		r.Get("/v1/registry/{family}/versions", s.RegistryListVersionsHandler)
		r.Put("/v1/registry/{family}/current", s.RegistrySetCurrentHandler)
		r.Get("/v1/registry/{family}/current", s.RegistryGetCurrentHandler)

		// Certificates
		r.Post("/v1/certificates", s.CertCreateHandler)
		r.Get("/v1/certificates", s.CertListHandler)
		r.Get("/v1/certificates/{id}", s.CertGetHandler)
		r.Post("/v1/certificates/{id}/versions", s.CertAddVersionHandler)
		r.Get("/v1/certificates/{id}/versions", s.CertListVersionsHandler)
		r.Get("/v1/certificates/{id}/versions/current", s.CertCurrentVersionHandler)
		r.Get("/v1/certificates/{id}/versions/{n}", s.CertVersionByNumberHandler)
		r.Post("/v1/certificates/{id}/activate", s.CertActivateHandler)

		// Version records
		r.Get("/v1/records/{recordID}", s.RecordDetailHandler)
		r.Put("/v1/records/{recordID}/status", s.RecordStatusHandler)
		r.Put("/v1/records/{recordID}/links", s.RecordLinksHandler)
	})

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	handler := s.BuildRouter()

	s.httpSrv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		tlsCfg := &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
		}
		s.httpSrv.TLSConfig = tlsCfg
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTPS server")
		return s.httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	}

	log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
