package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/quakecast/quake-delivery-service/config"
)

// Server owns the chi router shared by the streaming and REST handlers.
type Server struct {
	Router chi.Router

	srv             *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
	listener        net.Listener
}

func New(cfg *config.Config, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:         300,
	}))

	return &Server{
		Router: r,
		srv: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           r,
			ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
			// No WriteTimeout: streaming responses are long lived.
		},
		logger:          logger,
		shutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}
}

// Start binds the listener synchronously so a busy port fails the application start.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.srv.Addr, err)
	}
	s.listener = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP_SERVER_FAILED", slog.Any("err", err))
		}
	}()

	s.logger.Info("HTTP_SERVER_STARTED", slog.String("addr", ln.Addr().String()))
	return nil
}

// OnShutdown registers f to run when Stop begins, before in-flight requests are awaited.
// Long lived streams use it to end their handlers.
func (s *Server) OnShutdown(f func()) {
	s.srv.RegisterOnShutdown(f)
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP_SERVER_FORCED_CLOSE", slog.Any("err", err))
		return s.srv.Close()
	}
	s.logger.Info("HTTP_SERVER_STOPPED")
	return nil
}

// Addr reports the bound address, useful when configured with port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.srv.Addr
	}
	return s.listener.Addr().String()
}
