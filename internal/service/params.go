package service

import (
	"log/slog"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	"go.uber.org/fx"
)

type statusWriterParams struct {
	fx.In

	Config  *config.Config
	Users   UserStore
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type notifierParams struct {
	fx.In

	Config   *config.Config
	Hub      registry.Hubber
	Exporter Exporter
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

type managerParams struct {
	fx.In

	Config   *config.Config
	Auth     Auther
	Hub      registry.Hubber
	Status   *StatusWriter
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}
