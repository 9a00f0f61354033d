// Package web exposes the dashboard state over HTTP: a JSON snapshot, an SSE
// stream, a WebSocket push channel and the embedded page that consumes them.
package web

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/devusmanrafiq/lab-landing/internal/services/dashboard"
)

const shutdownTimeout = 5 * time.Second

// Dashboard is the view the server publishes.
type Dashboard interface {
	Snapshot() dashboard.State
	Load(ctx context.Context) error
	Refresh(ctx context.Context) error
	Subscribe() (<-chan struct{}, func())
}

// Server serves the dashboard endpoints.
type Server struct {
	addr     string
	view     Dashboard
	logger   *zap.Logger
	keeper   *keeper
	upgrader websocket.Upgrader
	handler  http.Handler
}

// NewServer creates a server listening on addr.
func NewServer(addr string, view Dashboard, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:   addr,
		view:   view,
		logger: logger.With(zap.String("component", "web")),
		keeper: newKeeper(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.handler = s.router()
	return s
}

// Handler returns the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/dashboard", func(r chi.Router) {
		r.Get("/", s.handleDashboard)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/stream", s.handleStream)
	})
	r.Get("/ws", s.handleWebSocket)
	r.Handle("/*", staticHandler())

	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := s.httpServer(s.addr, s.handler)
	go s.broadcast(ctx)
	go s.shutdownOnDone(ctx, server)

	s.logger.Info("dashboard server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen")
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with ACME certificates for domains and
// an HTTP server on :80 answering the HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return errors.New("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpSrv := s.httpServer(":80", manager.HTTPHandler(nil))
	httpsSrv := s.httpServer(s.addr, s.handler)
	httpsSrv.TLSConfig = tlsConfig

	go s.broadcast(ctx)
	go s.shutdownOnDone(ctx, httpSrv)
	go s.shutdownOnDone(ctx, httpsSrv)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme http server failed", zap.Error(err))
		}
	}()

	s.logger.Info("dashboard server listening with automatic TLS",
		zap.String("addr", s.addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen tls")
	}
	return nil
}

func (s *Server) httpServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) shutdownOnDone(ctx context.Context, server *http.Server) {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warn("server shutdown error", zap.String("addr", server.Addr), zap.Error(err))
	}
	s.keeper.closeAll()
}
