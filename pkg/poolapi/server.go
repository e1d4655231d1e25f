// Package poolapi is the buffer pool manager's admin HTTP surface: health
// and stats endpoints, a Prometheus metrics endpoint, a read-only GraphQL
// query surface, and a WebSocket feed of frame state transitions. None of
// it ever takes the manager's own lock directly — every handler goes
// through bufferpool.Manager's public API or the event hook it exposes,
// the same separation the teacher codebase keeps between its HTTP server
// and its database core.
package poolapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arcdb/pagepool/pkg/bufferpool"
)

// Server is the admin HTTP surface over a running buffer pool manager.
type Server struct {
	config    *Config
	pool      *bufferpool.Manager
	router    *chi.Mux
	httpSrv   *http.Server
	startTime time.Time
	hub       *eventHub
	metrics   *metricsExporter
	graphql   *graphqlHandler
}

// New builds an admin server over pool. It does not start listening;
// call Start for that.
func New(config *Config, pool *bufferpool.Manager) (*Server, error) {
	s := &Server{
		config:    config,
		pool:      pool,
		router:    chi.NewRouter(),
		startTime: time.Now(),
		hub:       newEventHub(),
		metrics:   newMetricsExporter(pool),
	}
	s.hub.attach(pool)

	if config.EnableGraphQL {
		h, err := newGraphQLHandler(pool)
		if err != nil {
			return nil, fmt.Errorf("pagepool: setup graphql: %w", err)
		}
		s.graphql = h
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	if s.config.EnableLogging {
		s.router.Use(middleware.Logger)
	}
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(s.requestSizeLimitMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/_health", s.handleHealth)
	s.router.Get("/_stats", s.handleStats)
	s.router.Get("/_metrics", s.handleMetrics)

	if s.config.EnableWebSocket {
		s.router.Get("/_ws/events", s.handleEvents)
	}
	if s.graphql != nil {
		s.router.Post("/graphql", s.graphql.ServeHTTP)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Stats())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := s.metrics.writeMetrics(w); err != nil {
		http.Error(w, fmt.Sprintf("error writing metrics: %v", err), http.StatusInternalServerError)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.config.AllowedOrigins) > 0 {
			origin = s.config.AllowedOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestSizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server and blocks until either it fails or the
// process receives SIGINT/SIGTERM, at which point it shuts down
// gracefully.
func (s *Server) Start() error {
	fmt.Printf("🚀 pagepool admin surface starting on http://%s\n", s.httpSrv.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("admin server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		fmt.Printf("\n⚠️  received signal: %v\n", sig)
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	fmt.Println("🛑 shutting down admin surface...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		fmt.Printf("❌ admin server shutdown error: %v\n", err)
		return err
	}
	fmt.Println("✅ admin surface shutdown complete")
	return nil
}
