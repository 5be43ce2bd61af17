// Package server is the HTTP read API. It serves only precomputed data;
// nothing here triggers analytics on the request path.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/Awannaphasch2016/dr-daily-report/internal/controller"
	"github.com/Awannaphasch2016/dr-daily-report/internal/database"
	"github.com/Awannaphasch2016/dr-daily-report/internal/events"
	"github.com/Awannaphasch2016/dr-daily-report/internal/marketclock"
	"github.com/Awannaphasch2016/dr-daily-report/internal/report"
	"github.com/Awannaphasch2016/dr-daily-report/internal/repository"
)

// Config holds server configuration
type Config struct {
	Port    int
	DataDir string
	DevMode bool

	DB         *database.DB
	Symbols    *repository.SymbolRepository
	Artifacts  *repository.ArtifactRepository
	Derived    *repository.DerivedRepository
	Watchlist  *repository.WatchlistRepository
	Reports    *report.Service
	Controller *controller.Controller
	Clock      *marketclock.Clock
	Bus        *events.Bus
	Log        zerolog.Logger
}

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	handlers *Handlers
	system   *SystemHandlers
	stream   *EventStream
	log      zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.handlers = NewHandlers(cfg.Symbols, cfg.Artifacts, cfg.Derived, cfg.Watchlist,
		cfg.Reports, cfg.Clock, cfg.Log)
	s.system = NewSystemHandlers(cfg.DataDir, cfg.DB, cfg.Controller, cfg.Clock, cfg.Log)
	s.stream = NewEventStream(cfg.Bus, cfg.Log)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open; per-handler timeouts instead
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.system.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/reports", func(r chi.Router) {
			r.Get("/{symbol}", s.handlers.HandleGetReport)
			r.Get("/{symbol}/chart", s.handlers.HandleGetChart)
		})

		r.Get("/search", s.handlers.HandleSearch)
		r.Get("/rankings", s.handlers.HandleRankings)

		r.Route("/watchlist/{userID}", func(r chi.Router) {
			r.Get("/", s.handlers.HandleWatchlistGet)
			r.Post("/{symbol}", s.handlers.HandleWatchlistAdd)
			r.Delete("/{symbol}", s.handlers.HandleWatchlistRemove)
		})

		r.Route("/jobs/reports", func(r chi.Router) {
			r.Post("/", s.handlers.HandleReportJobCreate)
			r.Get("/{jobID}", s.handlers.HandleReportJobStatus)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.system.HandleSystemStatus)
			r.Post("/run", s.system.HandleTriggerRun)
		})

		r.Get("/events", s.stream.HandleStream)
	})
}

// Start starts the HTTP server. Call ReloadSearchIndex first so search works
// from the first request.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// ReloadSearchIndex (re)builds the in-memory symbol search index.
func (s *Server) ReloadSearchIndex() error {
	return s.handlers.ReloadSearchIndex()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.stream.Close()
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
