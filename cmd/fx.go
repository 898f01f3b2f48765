package cmd

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/logging"
	"github.com/webitel/im-presence-service/infra/metrics"
	grpcsrv "github.com/webitel/im-presence-service/infra/server/grpc"
	httpsrv "github.com/webitel/im-presence-service/infra/server/http"
	"github.com/webitel/im-presence-service/infra/telemetry"
	"github.com/webitel/im-presence-service/internal/adapter/pubsub"
	"github.com/webitel/im-presence-service/internal/adapter/revocation"
	"github.com/webitel/im-presence-service/internal/adapter/storage"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	amqpdi "github.com/webitel/im-presence-service/internal/handler/amqp"
	"github.com/webitel/im-presence-service/internal/handler/rest"
	"github.com/webitel/im-presence-service/internal/handler/ws"
	"github.com/webitel/im-presence-service/internal/service"
)

func NewApp(cfg *config.Config, extra ...fx.Option) *fx.App {
	return fx.New(Options(cfg, extra...))
}

// Options is the complete dependency graph. The public listeners come last:
// fx stops in reverse order, so they close before anything they call into.
func Options(cfg *config.Config, extra ...fx.Option) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			ProvideLogger,
			ProvideSlog,
			ProvideWatermillLogger,
		),
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			fl := &fxevent.SlogLogger{Logger: l}
			fl.UseLogLevel(slog.LevelDebug)
			return fl
		}),
		fx.Invoke(watchConfig),

		registry.Module,
		metrics.Module,
		telemetry.Module,
		storage.Module,
		revocation.Module,
		pubsub.Module,
		service.Module,
		amqpdi.Module,
		ws.Module,
		rest.Module,
		grpcsrv.Module,
		httpsrv.Module,

		fx.Options(extra...),
	)
}

func ProvideLogger(lc fx.Lifecycle, cfg *config.Config) (*logging.Logger, error) {
	l, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return l.Close() }})
	return l, nil
}

func ProvideSlog(l *logging.Logger) *slog.Logger {
	logger := l.With(
		slog.String("service", ServiceName),
		slog.String("namespace", ServiceNamespace),
		slog.String("version", version),
	)
	slog.SetDefault(logger)
	return logger
}

func ProvideWatermillLogger(l *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(l.With(slog.String("component", "watermill")))
}

// watchConfig applies log level changes from the config file without a restart.
func watchConfig(cfg *config.Config, l *logging.Logger) {
	l.Info("[CONFIG] loaded",
		"http_addr", cfg.HTTP.Addr,
		"database_driver", cfg.Database.Driver,
		"broker", lo.Ternary(cfg.Broker.AMQPURL != "", "amqp", "in-process"),
		"build", buildTimestamp,
	)
	cfg.Watch(
		func(next *config.Config) {
			l.Level.Set(logging.ParseLevel(next.Log.Level))
			l.Info("[CONFIG] reloaded", "log_level", next.Log.Level)
		},
		func(err error) { l.Warn("[CONFIG] reload rejected", "err", err) },
	)
}
