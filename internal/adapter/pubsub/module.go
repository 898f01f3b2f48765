package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/fx"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/internal/service"
)

var Module = fx.Module("pubsub",
	fx.Provide(
		func(lc fx.Lifecycle, cfg *config.Config, logger watermill.LoggerAdapter) Provider {
			p := NewProvider(cfg.Broker, logger)
			lc.Append(fx.Hook{OnStop: func(context.Context) error { return p.Close() }})
			return p
		},
		func(p Provider, cfg *config.Config) (EventDispatcher, error) {
			events, err := p.Publisher(cfg.Broker.Exchange)
			if err != nil {
				return nil, err
			}
			inbound, err := p.Publisher(InboundExchange)
			if err != nil {
				return nil, err
			}
			return NewEventDispatcher(events, inbound), nil
		},
		fx.Annotate(
			func(lc fx.Lifecycle, d EventDispatcher, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *AsyncExporter {
				e := NewAsyncExporter(d, cfg.Broker.ExportQueue, logger, m)
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error { e.Start(); return nil },
					OnStop:  e.Stop,
				})
				return e
			},
			fx.As(new(service.Exporter)),
		),
	),
)
