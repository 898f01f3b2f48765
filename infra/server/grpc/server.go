package grpcsrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/server/grpc/interceptors"
)

// Server is the ops listener exposing grpc.health.v1 for orchestrators.
type Server struct {
	*grpc.Server
	health   *health.Server
	logger   *slog.Logger
	addr     string
	listener net.Listener
}

func New(cfg config.GRPCConfig, logger *slog.Logger) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.Unary(logger)...),
		grpc.ChainStreamInterceptor(interceptors.Stream(logger)...),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		Server: srv,
		health: hs,
		logger: logger,
		addr:   cfg.Addr,
	}
}

func (s *Server) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc server: listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		s.logger.Info("[GRPC] server started", "addr", ln.Addr().String())
		if err := s.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("[GRPC] server stopped unexpectedly", "err", err)
		}
	}()
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop flips health to NOT_SERVING first so health checks see the drain, then stops
// gracefully, forcing it when ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.Server.Stop()
	}
	s.logger.Info("[GRPC] server stopped")
	return nil
}
