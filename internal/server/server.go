// Package server exposes the ingested weather tables over a read-only
// HTTP API for downstream transformation and visualization layers.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/snowfall-analytics/snowfall-ingest/internal/database"
	"github.com/snowfall-analytics/snowfall-ingest/pkg/config"
	"go.uber.org/zap"
)

// Server serves the ingested tables
type Server struct {
	cfg        config.ServerData
	db         *database.Client
	logger     *zap.SugaredLogger
	httpServer *http.Server
}

// New creates a new server over the given database client
func New(cfg config.ServerData, db *database.Client, logger *zap.SugaredLogger) *Server {
	s := &Server{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}

	router := mux.NewRouter()
	router.Use(s.requestLogger)
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/stations", s.handleStations).Methods(http.MethodGet)
	router.HandleFunc("/api/stations/{id}/days", s.handleStationDays).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler, exposed for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the context is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("HTTP server listening on %s", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
