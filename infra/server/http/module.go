package httpsrv

import (
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/webitel/im-presence-service/config"
)

var Module = fx.Module("http-server",
	fx.Provide(func(lc fx.Lifecycle, cfg *config.Config, handler http.Handler, logger *slog.Logger) *Server {
		s := New(cfg.HTTP, handler, logger)
		lc.Append(fx.Hook{OnStart: s.Start, OnStop: s.Stop})
		return s
	}),
	// The server has no dependants; force its construction.
	fx.Invoke(func(*Server) {}),
)
