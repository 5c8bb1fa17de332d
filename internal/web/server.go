// Package web provides the HTTP API for detection, preview, file type
// settings and ingestion runs.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/sheetload/internal/config"
	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/metrics"
	"github.com/JonMunkholm/sheetload/internal/web/middleware"
)

// Server is the HTTP server for sheetload.
type Server struct {
	service *core.Service
	metrics *metrics.Metrics
	cfg     *config.Config
	paths   pathPolicy
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server. m may be nil, in which case /metrics is 404.
func NewServer(service *core.Service, m *metrics.Metrics, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		metrics: m,
		cfg:     cfg,
		paths:   newPathPolicy(cfg.Ingest.AllowedRoots),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		// File type settings
		r.Get("/types", s.handleListTypes)
		r.Get("/types/{name}", s.handleGetType)
		r.Put("/types/{name}", s.handleSaveType)

		// Inspection
		r.Post("/detect", s.handleDetect)
		r.Post("/preview", s.handlePreview)

		// Runs
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.With(newRateLimiter(s.cfg.Rate.RunLimit, time.Minute).middleware).Post("/runs", s.handleStartRun)
			} else {
				r.Post("/runs", s.handleStartRun)
			}
		})
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Post("/runs/{id}/cancel", s.handleCancelRun)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for active runs to finish
// until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.service.WaitForRuns(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
