package rest

import (
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/internal/adapter/pubsub"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	"github.com/webitel/im-presence-service/internal/handler/ws"
	"github.com/webitel/im-presence-service/internal/service"
)

type handlerParams struct {
	fx.In

	Users     service.UserStore
	Messages  service.MessageStore
	Enricher  service.Enricher
	Revoker   service.Revoker
	Lifecycle service.Lifecycle
	Hub       registry.Hubber
	Announcer Announcer
	Logger    *slog.Logger
}

type routerParams struct {
	fx.In

	Config  *config.Config
	Handler *Handler
	Auth    service.Auther
	WS      *ws.Handler
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

var Module = fx.Module("rest",
	fx.Provide(
		func(d pubsub.EventDispatcher) Announcer { return d },
		NewHandler,
		func(p routerParams) http.Handler {
			return NewRouter(p.Handler, p.Auth, p.WS, p.Metrics, p.Config.HTTP.AdminKey, p.Logger)
		},
	),
)
