// Package api exposes the repository chat service over a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/gitquery/internal/rag"
	"github.com/koopa0/gitquery/internal/store"
)

const (
	readHeaderTimeout = 10 * time.Second
	// Indexing a repository fetches up to a hundred files and embeds
	// every chunk, so write timeouts are generous.
	writeTimeout    = 5 * time.Minute
	idleTimeout     = 2 * time.Minute
	shutdownTimeout = 15 * time.Second
)

// RAGService is the part of the pipeline the HTTP layer needs.
type RAGService interface {
	IndexRepository(ctx context.Context, repoURL string) (*rag.IndexResult, error)
	StartSession(ctx context.Context, repoURL string) (*store.Session, error)
	Ask(ctx context.Context, sessionID uuid.UUID, question string) (*rag.Answer, error)
}

// Pinger checks storage connectivity for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Addr    string
	Service RAGService
	Pinger  Pinger // optional: nil makes /ready unconditional
	Logger  *slog.Logger
}

// Server is the JSON API HTTP server.
type Server struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("api: service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rh := &repoHandler{service: cfg.Service, logger: logger}
	ch := &chatHandler{service: cfg.Service, logger: logger}
	hh := &healthHandler{pinger: cfg.Pinger, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/repo/index", rh.index)
	mux.HandleFunc("POST /api/chat/session", ch.createSession)
	mux.HandleFunc("POST /api/chat/ask", ch.ask)
	mux.HandleFunc("GET /health", hh.health)
	mux.HandleFunc("GET /ready", hh.ready)

	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{addr: cfg.Addr, handler: handler, logger: logger}, nil
}

// Handler returns the fully wrapped HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
