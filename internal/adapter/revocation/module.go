package revocation

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/service"
)

// Module selects redis when redis.url is set, memory otherwise.
var Module = fx.Module("revocation",
	fx.Provide(
		func(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (service.Revoker, error) {
			if cfg.Redis.URL == "" {
				log.Info("REVOCATION_BACKEND", "backend", "memory")
				return NewMemoryRevoker(cfg.Auth.RevocationTTL), nil
			}

			r, err := NewRedisRevoker(context.Background(), cfg.Redis.URL, cfg.Auth.RevocationTTL)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{OnStop: func(context.Context) error { return r.Close() }})
			log.Info("REVOCATION_BACKEND", "backend", "redis")
			return r, nil
		},
	),
)
