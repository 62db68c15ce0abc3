// Package server provides the HTTP API for the Ganymede governance core.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/governance"
	"mercator-hq/ganymede/pkg/health"
	"mercator-hq/ganymede/pkg/policy"
	"mercator-hq/ganymede/pkg/state"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// Server is the governance API server.
type Server struct {
	config      *config.ServerConfig
	coordinator *governance.Coordinator
	monitor     *health.Monitor
	store       state.Store
	rules       *policy.RuleSet
	metrics     *metrics.Collector
	version     VersionInfo

	httpServer   *http.Server
	logger       *slog.Logger
	inflight     atomic.Int64
	shutdownOnce sync.Once
	mu           sync.Mutex
	isRunning    bool
}

// NewServer creates a governance API server. The collector may be nil to
// disable the /metrics endpoint.
func NewServer(cfg *config.ServerConfig, coordinator *governance.Coordinator, monitor *health.Monitor, store state.Store, rules *policy.RuleSet, collector *metrics.Collector, version VersionInfo) *Server {
	return &Server{
		config:      cfg,
		coordinator: coordinator,
		monitor:     monitor,
		store:       store,
		rules:       rules,
		metrics:     collector,
		version:     version,
		logger:      slog.Default().With("component", "server"),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Routes(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting governance API server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server, waiting up to the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("shutdown error: %w", err)
		}
	})
	return shutdownErr
}

// Routes builds the route table wrapped in the middleware chain.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Validation
	mux.HandleFunc("POST /validate", s.handleValidate)

	// Health
	mux.HandleFunc("GET /health", s.monitor.LivenessHandler())
	mux.HandleFunc("GET /ready", s.monitor.ReadinessHandler())
	mux.HandleFunc("GET /health/system", s.monitor.SnapshotHandler())
	mux.HandleFunc("GET /health/agents/{name}", s.monitor.AgentHandler())
	mux.HandleFunc("POST /health/agents/{name}/heartbeat", s.monitor.HeartbeatHandler())

	// Containment
	mux.HandleFunc("POST /control/isolate/{agent}", s.handleIsolate)
	mux.HandleFunc("POST /control/restore/{agent}", s.handleRestore)
	mux.HandleFunc("POST /control/halt", s.handleHalt)
	mux.HandleFunc("POST /control/resume", s.handleResume)
	mux.HandleFunc("GET /control/status", s.handleStatus)

	// State
	mux.HandleFunc("GET /state/{key}", s.handleStateGet)
	mux.HandleFunc("GET /state/{key}/history", s.handleStateHistory)
	mux.HandleFunc("POST /state/{key}/rollback", s.handleStateRollback)

	// Audit, rules, build info
	mux.HandleFunc("GET /audit", s.handleAudit)
	mux.HandleFunc("GET /rules", s.handleRules)
	mux.HandleFunc("GET /version", s.handleVersion)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = s.trackInFlight(handler)
	handler = TimeoutMiddleware(s.config.WriteTimeout)(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)
	return handler
}

// InFlight returns the number of requests currently being served. The
// health monitor reads this as the queue depth.
func (s *Server) InFlight() int {
	return int(s.inflight.Load())
}

func (s *Server) trackInFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.inflight.Add(1)
		defer s.inflight.Add(-1)
		next.ServeHTTP(w, r)
	})
}
