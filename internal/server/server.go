// Package server exposes the HTTP control surface: job start/stop/status,
// latest run artefacts and screen results, the run index, system stats, and a
// websocket stream of job logs. Routing and JSON shaping only; all business
// logic lives in the packages behind it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/artifacts"
	"github.com/Gotti0/kimum-trade-sub000/internal/database"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
	"github.com/Gotti0/kimum-trade-sub000/internal/jobs"
	"github.com/Gotti0/kimum-trade-sub000/internal/screener"
	"github.com/Gotti0/kimum-trade-sub000/internal/universe"
)

// Config holds everything the HTTP surface serves.
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	Jobs      *jobs.Manager
	JobFuncs  map[jobs.Kind]jobs.Fn
	Artifacts *artifacts.Store
	RunIndex  *artifacts.RunIndex
	Screens   *screener.Store
	Universe  *universe.Repository
	Databases map[string]*database.DB
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	jobHandlers    *JobHandlers
	resultHandlers *ResultHandlers
	systemHandlers *SystemHandlers
	logStream      *LogStreamHandler
}

func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		jobHandlers:    NewJobHandlers(cfg.Jobs, cfg.JobFuncs, cfg.Log),
		resultHandlers: NewResultHandlers(cfg.Artifacts, cfg.RunIndex, cfg.Screens, cfg.Universe, cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.DataDir, cfg.Databases, cfg.Log),
		logStream:      NewLogStreamHandler(cfg.Jobs, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			// The stream stays outside the timeout group; websocket
			// connections outlive any request deadline.
			r.Get("/{id}/stream", s.logStream.ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))
				r.Get("/", s.jobHandlers.HandleList)
				r.Post("/{kind}/start", s.jobHandlers.HandleStart)
				r.Get("/{id}", s.jobHandlers.HandleStatus)
				r.Post("/{id}/stop", s.jobHandlers.HandleStop)
				r.Get("/{id}/logs", s.jobHandlers.HandleLogs)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/results", func(r chi.Router) {
				r.Get("/runs", s.resultHandlers.HandleRecentRuns)
				r.Get("/{strategy}/latest", s.resultHandlers.HandleLatestResult)
			})

			r.Get("/screens/{kind}/latest", s.resultHandlers.HandleLatestScreen)
			r.Get("/universe", s.resultHandlers.HandleUniverse)

			r.Route("/system", func(r chi.Router) {
				r.Get("/stats", s.systemHandlers.HandleStats)
				r.Get("/databases", s.systemHandlers.HandleDatabaseStats)
			})
		})
	})
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Configuration problems
// are the caller's fault; everything else is ours.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var cfgErr *domain.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Field {
		case "kind":
			status = http.StatusConflict
		case "job_id":
			status = http.StatusNotFound
		default:
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
