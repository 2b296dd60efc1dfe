// Package web provides the HTTP query/authoring API in front of the store.
// All graph-consistency logic lives in the store and resolver; handlers only
// translate requests and responses.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/mappergraph/crosswalk/internal/config"
	"github.com/mappergraph/crosswalk/internal/exporter"
	"github.com/mappergraph/crosswalk/internal/store"
)

// Server is the HTTP server for the relationship graph API.
type Server struct {
	store    *store.Store
	exporter *exporter.Exporter
	router   *chi.Mux
	server   *http.Server
	validate *validator.Validate
	now      func() time.Time
}

// NewServer creates a new Server instance.
func NewServer(s *store.Store, cfg *config.Config) *Server {
	srv := &Server{
		store:    s,
		exporter: exporter.New(s),
		router:   chi.NewRouter(),
		validate: validator.New(),
		now:      time.Now,
	}
	srv.setupMiddleware(cfg)
	srv.setupRoutes()
	srv.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return srv
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware(cfg *config.Config) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(cfg.Server.RequestTimeout))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		// Document reads
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{docIdentifier}/elements", s.handleDocumentElements)
		r.Get("/documents/{docIdentifier}/id", s.handleDocumentID)
		r.Get("/document", s.handleGetDocument)

		// Mapping authoring
		r.Post("/provenance-documents", s.handleCreateProvenanceDocument)
		r.Post("/relationships", s.handleValidateRelationship)
		r.Post("/relationships/bulk", s.handleBulkRelationships)

		// Export
		r.Get("/relationships/export", s.handleExportRelationships)
	})
}

// Router exposes the handler tree, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until Shutdown or failure.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
