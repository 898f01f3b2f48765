package httpsrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/webitel/im-presence-service/config"
)

// Server owns the public listener: REST, WebSocket upgrades and ops endpoints.
type Server struct {
	srv             *http.Server
	logger          *slog.Logger
	addr            string
	shutdownTimeout time.Duration
	listener        net.Listener
}

func New(cfg config.HTTPConfig, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			// [TRACING] otelhttp keeps http.Hijacker intact, WebSocket upgrades pass through
			Handler:           otelhttp.NewHandler(handler, "http.server"),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger:          logger,
		addr:            cfg.Addr,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Start binds the listener synchronously so a busy port fails the app start.
func (s *Server) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", s.addr, err)
	}
	s.listener = ln

	go func() {
		s.logger.Info("[HTTP] server started", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("[HTTP] server stopped unexpectedly", "err", err)
		}
	}()
	return nil
}

// Addr is the bound address, useful when configured with port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop stops accepting requests. Hijacked WebSocket connections are not
// tracked by http.Server; the connection manager drains them afterwards.
func (s *Server) Stop(ctx context.Context) error {
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server: shutdown: %w", err)
	}
	s.logger.Info("[HTTP] server stopped")
	return nil
}
