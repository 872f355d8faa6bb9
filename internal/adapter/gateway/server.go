package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"uiagent/internal/domain"
	"uiagent/internal/infra/middleware"
)

// Options configures the HTTP surface.
type Options struct {
	Addr        string
	CORSOrigins []string
	RateLimit   middleware.RateLimitConfig
	// MonitorAuth enables GET /ws when non-nil.
	MonitorAuth Authenticator
}

// Server serves the chat, stream, legacy and status endpoints.
type Server struct {
	deps      HandlerDeps
	opts      Options
	bus       domain.EventBus
	logger    *slog.Logger
	startTime time.Time

	mu        sync.Mutex // guards the fields below
	monitor   *Monitor
	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates a server. bus feeds the /ws monitor and may be nil when
// the monitor is disabled.
func NewServer(deps HandlerDeps, bus domain.EventBus, opts Options, logger *slog.Logger) *Server {
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &Server{
		deps:      deps,
		opts:      opts,
		bus:       bus,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Handler builds the routed, middleware-wrapped handler. ctx bounds the rate
// limiter's background sweep.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	if s.deps.Agent != nil {
		mux.HandleFunc("POST /ai/chat", chatHandler(s.deps))
		mux.HandleFunc("GET /ai/stream", streamHandler(s.deps))
	}
	if s.deps.Legacy != nil {
		mux.HandleFunc("POST /ai/agent", legacyHandler(s.deps))
	}
	if s.deps.Tools != nil {
		mux.HandleFunc("GET /ai/tools", toolsHandler(s.deps))
	}
	mux.HandleFunc("GET /healthz", healthHandler(s.deps, s.startTime))

	if s.opts.MonitorAuth != nil && s.bus != nil {
		s.mu.Lock()
		if s.monitor == nil {
			s.monitor = NewMonitor(s.bus, s.opts.MonitorAuth, s.opts.CORSOrigins, s.logger)
		}
		mux.Handle("GET /ws", s.monitor)
		s.mu.Unlock()
	}

	return middleware.Chain(mux,
		middleware.RequestLogger(s.logger),
		middleware.SecurityHeaders,
		middleware.CORS(s.opts.CORSOrigins),
		middleware.RateLimit(ctx, s.opts.RateLimit),
	)
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	addr := listener.Addr().String()
	handler := s.Handler(ctx)

	// No write timeout: streams stay open for the whole agent run.
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.boundAddr = addr
	s.httpSrv = srv
	monitorOn := s.monitor != nil
	s.mu.Unlock()

	s.logger.Info("gateway started", "addr", addr,
		"streaming", s.deps.Agent != nil, "monitor", monitorOn)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop disconnects monitor clients and shuts the listener down gracefully.
// Calling it more than once is safe.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	monitor, srv := s.monitor, s.httpSrv
	s.mu.Unlock()

	if monitor != nil {
		monitor.Close()
	}
	if srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// BoundAddr returns the listener address, or "" before Start has bound it.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}
