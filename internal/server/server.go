// Package server provides the HTTP API for Finbot.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/finbot/finbot/internal/config"
	"github.com/finbot/finbot/internal/ingest"
	"github.com/finbot/finbot/internal/retrieval"
	"github.com/finbot/finbot/internal/storage"
	"github.com/finbot/finbot/internal/vector"
)

// Server is the HTTP server for the Finbot API.
type Server struct {
	orchestrator *retrieval.Orchestrator
	ingestor     *ingest.Ingestor
	registry     *storage.Registry
	store        *vector.Store
	collector    *retrieval.Collector
	config       *config.Config
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	orchestrator *retrieval.Orchestrator,
	ingestor *ingest.Ingestor,
	registry *storage.Registry,
	store *vector.Store,
	collector *retrieval.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		orchestrator: orchestrator,
		ingestor:     ingestor,
		registry:     registry,
		store:        store,
		collector:    collector,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/api/v1/upload", s.handleUpload)
	r.Post("/api/v1/documents", s.handleAddDocument)
	r.Get("/api/v1/documents", s.handleListDocuments)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
