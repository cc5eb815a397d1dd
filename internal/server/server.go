// Package server provides the HTTP API for marketiq.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/marketiq/internal/assistant"
	"github.com/hyperjump/marketiq/internal/config"
	"github.com/hyperjump/marketiq/internal/indexer"
	"github.com/hyperjump/marketiq/internal/storage"
)

// Server is the HTTP server for the marketiq API.
type Server struct {
	assistant *assistant.Assistant
	indexer   *indexer.Indexer
	storage   storage.Storage
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	a *assistant.Assistant,
	idx *indexer.Indexer,
	st storage.Storage,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		assistant: a,
		indexer:   idx,
		storage:   st,
		config:    cfg,
		logger:    logger,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/analyze", s.handleAnalyze)
		r.Get("/prompts", s.handlePrompts)
		r.Get("/companies", s.handleCompanies)
		r.Get("/companies/search", s.handleSearchCompanies)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/metrics/search", s.handleSearchMetrics)
		r.Post("/compare", s.handleCompare)
		r.Get("/filings/recent", s.handleRecentFilings)
		r.Post("/documents", s.handleIndexDocument)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
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
