package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// DefaultCredentialsPath is the frontend route that receives linked credentials
const DefaultCredentialsPath = "/credentials"

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger
	now        func() time.Time

	frontendURL     string
	credentialsPath string

	// Services
	oauthService driving.OAuthService
	postService  driving.PostService

	// Infrastructure
	tokens driven.TokenVerifier // nil leaves the management API open
	store  Pinger
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// FrontendURL is the application origin; it receives post-flow redirects
	// and is the only CORS origin allowed.
	FrontendURL     string
	CredentialsPath string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		FrontendURL:     "http://localhost:3000",
		CredentialsPath: DefaultCredentialsPath,
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	oauthService driving.OAuthService,
	postService driving.PostService,
	tokens driven.TokenVerifier, // can be nil
	store Pinger,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	credentialsPath := cfg.CredentialsPath
	if credentialsPath == "" {
		credentialsPath = DefaultCredentialsPath
	}
	if !strings.HasPrefix(credentialsPath, "/") {
		credentialsPath = "/" + credentialsPath
	}

	s := &Server{
		router:          http.NewServeMux(),
		version:         cfg.Version,
		logger:          logger,
		now:             time.Now,
		frontendURL:     strings.TrimSuffix(cfg.FrontendURL, "/"),
		credentialsPath: credentialsPath,
		oauthService:    oauthService,
		postService:     postService,
		tokens:          tokens,
		store:           store,
	}

	s.setupRoutes()

	var handler http.Handler = s.router
	handler = NewCORSMiddleware([]string{s.frontendURL}).Handler(handler)
	handler = NewLoggingMiddleware(logger).Handler(handler)
	handler = NewRecoveryMiddleware(logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.tokens)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// OAuth flow endpoints (public, reached by browser navigation)
	s.router.HandleFunc("GET /auth/{provider}", s.handleInitiate)
	s.router.HandleFunc("GET /auth/{provider}/callback", s.handleCallback)

	// Connection management (authenticated when a verifier is configured)
	s.router.Handle("GET /api/v1/connections/{provider}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListConnections)))
	s.router.Handle("GET /api/v1/connections/{provider}/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetConnection)))
	s.router.Handle("DELETE /api/v1/connections/{provider}/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleDeleteConnection)))
	s.router.Handle("POST /api/v1/connections/{provider}/{id}/refresh",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleRefreshConnection)))

	// Posts
	s.router.Handle("POST /api/v1/posts",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleCreatePost)))
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
