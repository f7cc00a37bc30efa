package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/faucetdb/schemaguard/internal/config"
	"github.com/faucetdb/schemaguard/internal/handler"
	"github.com/faucetdb/schemaguard/internal/logger"
	"github.com/faucetdb/schemaguard/internal/pipeline"
	"github.com/faucetdb/schemaguard/internal/server/middleware"
	"github.com/faucetdb/schemaguard/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	CORSMethods     []string
	MaxUploadSize   int64 // bytes
	RateLimit       int   // requests per minute per IP, 0 disables
	ValidateLimit   int   // uploads per minute per API key or IP, 0 disables
	JWTExpiry       time.Duration
	APIKeyHeader    string
	TLSCertFile     string
	TLSKeyFile      string
	Version         string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		CORSMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		MaxUploadSize:   50 * 1000 * 1000,
		RateLimit:       120,
		ValidateLimit:   30,
		JWTExpiry:       time.Hour,
		APIKeyHeader:    "X-API-Key",
		Version:         "dev",
	}
}

// ConfigFromYAML derives the server settings from the server and auth
// sections of the config file. Unset values keep their defaults.
func ConfigFromYAML(y *config.YAMLConfig) Config {
	cfg := DefaultConfig()
	if y == nil {
		return cfg
	}
	if y.Server.Host != "" {
		cfg.Host = y.Server.Host
	}
	if y.Server.Port > 0 {
		cfg.Port = y.Server.Port
	}
	cfg.ShutdownTimeout = config.ParseDuration(y.Server.ShutdownTimeout, cfg.ShutdownTimeout)
	cfg.MaxUploadSize = config.ParseSize(y.Server.MaxUploadSize, cfg.MaxUploadSize)
	if y.Server.RateLimit >= 0 {
		cfg.RateLimit = y.Server.RateLimit
	}
	if y.Server.ValidateRateLimit >= 0 {
		cfg.ValidateLimit = y.Server.ValidateRateLimit
	}
	if len(y.Server.CORS.Origins) > 0 {
		cfg.CORSOrigins = y.Server.CORS.Origins
	}
	if len(y.Server.CORS.Methods) > 0 {
		cfg.CORSMethods = y.Server.CORS.Methods
	}
	if y.Server.TLS.Enabled {
		cfg.TLSCertFile = y.Server.TLS.CertFile
		cfg.TLSKeyFile = y.Server.TLS.KeyFile
	}
	cfg.JWTExpiry = config.ParseDuration(y.Auth.JWTExpiry, cfg.JWTExpiry)
	if y.Auth.APIKeyHeader != "" {
		cfg.APIKeyHeader = y.Auth.APIKeyHeader
	}
	return cfg
}

// Server is the top-level HTTP server for schemaguard. It owns the Chi
// router and the pipeline dependencies every handler is built from.
type Server struct {
	cfg        Config
	router     chi.Router
	deps       pipeline.Deps
	authSvc    *service.AuthService
	httpServer *http.Server
	logger     *zap.SugaredLogger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps pipeline.Deps, authSvc *service.AuthService) *Server {
	deps.Logger = logger.OrNop(deps.Logger)
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		authSvc: authSvc,
		logger:  deps.Logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   s.cfg.CORSMethods,
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.cfg.APIKeyHeader, "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI document (no auth required) ---
	openAPIHandler := handler.NewOpenAPIHandler(s.deps.Registry, s.deps.Store, s.cfg.APIKeyHeader, s.cfg.Version, s.logger)
	r.Get("/openapi.json", openAPIHandler.ServeSpec)

	sysHandler := handler.NewSystemHandler(s.deps.Store, s.authSvc, s.deps.Registry, s.cfg.JWTExpiry, s.logger)
	schemaHandler := handler.NewSchemaHandler(s.deps)
	historyHandler := handler.NewHistoryHandler(s.deps)
	validateHandler := handler.NewValidateHandler(s.deps, s.cfg.MaxUploadSize)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(s.cfg.RateLimit))
		}

		// Login is the only unauthenticated API endpoint.
		r.Post("/auth/session", sysHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.authSvc, s.cfg.APIKeyHeader))

			r.Delete("/auth/session", sysHandler.Logout)

			if s.cfg.ValidateLimit > 0 {
				r.With(middleware.RateLimitByHeader(s.cfg.APIKeyHeader, s.cfg.ValidateLimit)).
					Post("/validate", validateHandler.Validate)
			} else {
				r.Post("/validate", validateHandler.Validate)
			}

			r.Get("/sources", sysHandler.ListSources)
			r.Get("/sources/{sourceName}/tables", schemaHandler.ListTables)
			r.Get("/sources/{sourceName}/tables/{tableName}", schemaHandler.GetTableSchema)

			r.Get("/history/{tableID}", historyHandler.ListSnapshots)
			r.Get("/history/{tableID}/drift", historyHandler.Drift)

			// Source and key management require an admin session.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin())

				r.Post("/sources", sysHandler.CreateSource)
				r.Delete("/sources/{sourceName}", sysHandler.DeleteSource)

				r.Get("/keys", sysHandler.ListAPIKeys)
				r.Post("/keys", sysHandler.CreateAPIKey)
				r.Delete("/keys/{prefix}", sysHandler.RevokeAPIKey)
			})
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when all reference sources
// are reachable, or 503 if any connector is unhealthy.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	for _, name := range s.deps.Registry.ListSources() {
		conn, err := s.deps.Registry.Get(name)
		if err != nil {
			checks[name] = "error: " + err.Error()
			status = "degraded"
			continue
		}
		if err := conn.Ping(r.Context()); err != nil {
			checks[name] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks[name] = "ok"
		}
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing all reference connections.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSCertFile != "" {
			s.logger.Infow("server starting", "addr", addr, "tls", true)
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			s.logger.Infow("server starting", "addr", addr)
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.deps.Registry.CloseAll()
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
