package service

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		fx.Annotate(
			NewAuthService,
			fx.As(new(Auther)),
		),
		fx.Annotate(
			NewPeerEnricherService,
			fx.As(new(Enricher)),
		),
		fx.Annotate(
			NewEventRouter,
			fx.As(new(Router)),
		),
		newStatusWriter,
		newPresenceNotifier,
		newConnectionManager,
	),

	// [DECORATION_LAYER] Intercept Enricher to add cross-cutting concerns
	fx.Decorate(func(orig Enricher, logger *slog.Logger) Enricher {
		return NewEnricherMiddleware(orig, logger)
	}),
)

// The workers are stopped in reverse construction order: connections are
// drained first, then the broadcast and status queues are flushed.

func newStatusWriter(lc fx.Lifecycle, p statusWriterParams) *StatusWriter {
	w := NewStatusWriter(p.Config, p.Users, p.Logger, p.Metrics)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { w.Start(); return nil },
		OnStop:  w.Stop,
	})
	return w
}

func newPresenceNotifier(lc fx.Lifecycle, p notifierParams) Notifier {
	n := NewPresenceNotifier(p.Config, p.Hub, p.Exporter, p.Logger, p.Metrics)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { n.Start(); return nil },
		OnStop:  n.Stop,
	})
	return n
}

func newConnectionManager(lc fx.Lifecycle, p managerParams) Lifecycle {
	m := NewConnectionManager(p.Config, p.Auth, p.Hub, p.Status, p.Notifier, p.Logger, p.Metrics)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := m.Shutdown(ctx); err != nil {
				p.Logger.Warn("CONNECTION_DRAIN_INCOMPLETE", "err", err)
			}
			return nil
		},
	})
	return m
}
