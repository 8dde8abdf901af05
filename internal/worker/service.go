// Package worker provides the HTTP worker service for spiral: session
// lifecycle endpoints, the step loop, and the SSE dashboard feed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/spiral/internal/config"
	gormdb "github.com/thebtf/spiral/internal/db/gorm"
	"github.com/thebtf/spiral/internal/flow"
	"github.com/thebtf/spiral/internal/worker/sse"
)

// Service wires the flow engine, the stores, and the HTTP surface together.
type Service struct {
	version        string
	config         *config.Config
	store          *gormdb.Store
	sessions       *gormdb.SessionStore
	steps          *gormdb.StepStore
	profiles       *gormdb.ProfileStore
	engine         *flow.Engine
	metrics        *Metrics
	sseBroadcaster *sse.Broadcaster
	router         *chi.Mux
	httpServer     *http.Server
	ctx            context.Context
	cancel         context.CancelFunc
	startTime      time.Time
	ready          atomic.Bool
}

// NewService creates a worker service around an opened store and engine.
func NewService(version string, cfg *config.Config, store *gormdb.Store, engine *flow.Engine) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:        version,
		config:         cfg,
		store:          store,
		sessions:       gormdb.NewSessionStore(store),
		steps:          gormdb.NewStepStore(store),
		profiles:       gormdb.NewProfileStore(store),
		engine:         engine,
		metrics:        NewMetrics(),
		sseBroadcaster: sse.NewBroadcaster(),
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
	}

	svc.setupRoutes()
	return svc
}

// setupRoutes registers all HTTP routes.
func (s *Service) setupRoutes() {
	r := s.router
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/events", s.sseBroadcaster.HandleSSE)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/next", s.handleNextStep)
				r.Post("/answer", s.handleSubmitAnswer)
			})
		})
	})
}

// Start runs the HTTP server until Shutdown is called.
func (s *Service) Start() error {
	addr := fmt.Sprintf(":%d", s.config.WorkerPort)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.ready.Store(true)
	log.Info().Str("addr", addr).Str("version", s.version).Msg("Worker listening")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.cancel()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the HTTP handler, mainly for tests.
func (s *Service) Router() http.Handler { return s.router }

// requestLogger logs each request at debug level after it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
