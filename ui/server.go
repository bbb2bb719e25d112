// Package ui serves the dashboard: the JSON API, the live drag and progress
// channel and the page that drives them.
package ui

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"riskboard/internal/clock"
	"riskboard/internal/export"
	"riskboard/internal/metrics"
	"riskboard/internal/upload"
	"riskboard/ports"
)

// Deps are the components the dashboard serves
type Deps struct {
	Auth     ports.AuthProvider
	Uploads  *upload.Orchestrator
	Exports  *export.Pipeline
	Clock    clock.Clock
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Options tune the HTTP surface
type Options struct {
	AllowedOrigins      []string
	DragDebounce        time.Duration
	UploadRatePerMinute int
	MaxUploadBytes      int64
}

// Server represents the dashboard web server
type Server struct {
	router    chi.Router
	auth      ports.AuthProvider
	uploads   *upload.Orchestrator
	exports   *export.Pipeline
	clock     clock.Clock
	gatherer  prometheus.Gatherer
	limiter   *uploadLimiter
	templates *template.Template
	logger    *slog.Logger
	opts      Options

	// live connections end when the server closes
	ctx    context.Context
	cancel context.CancelFunc
	live   sync.WaitGroup
}

// NewServer creates a dashboard server with all routes registered
func NewServer(deps Deps, opts Options) (*Server, error) {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.UploadRatePerMinute <= 0 {
		opts.UploadRatePerMinute = 30
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:    chi.NewRouter(),
		auth:      deps.Auth,
		uploads:   deps.Uploads,
		exports:   deps.Exports,
		clock:     deps.Clock,
		gatherer:  deps.Gatherer,
		limiter:   newUploadLimiter(opts.UploadRatePerMinute),
		templates: templates,
		logger:    deps.Logger.With("component", "ui"),
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.setupMiddleware()
	s.setupRoutes()
	go s.limiter.cleanupLoop(ctx, limiterCleanupInterval)
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close ends every live connection and waits for them to unwind. It also stops
// the upload limiter cleanup.
func (s *Server) Close() {
	s.cancel()
	s.live.Wait()
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleIndex)
	s.router.Get("/ws", s.handleLive)
	if s.gatherer != nil {
		s.router.Handle("/metrics", metrics.Handler(s.gatherer))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleSession)
		r.Post("/auth/signin", s.handleSignIn)
		r.Post("/auth/signup", s.handleSignUp)
		r.Post("/auth/signout", s.handleSignOut)

		r.Get("/backend/health", s.handleHealth)
		r.Get("/template", s.handleTemplate)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.With(s.rateLimitUploads).Post("/upload", s.handleUpload)
			r.Post("/upload/error/clear", s.handleClearError)
			r.Get("/results", s.handleResults)
			r.Get("/export", s.handleExport)
		})
	})
}
