package grpcsrv

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-presence-service/config"
)

var Module = fx.Module("grpc-server",
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) {
		if !cfg.GRPC.Enabled {
			return
		}
		s := New(cfg.GRPC, logger)
		lc.Append(fx.Hook{OnStart: s.Start, OnStop: s.Stop})
	}),
)
