package amqp

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/webitel/im-presence-service/internal/adapter/pubsub"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		NewMessageHandler,
		NewWatermillRouter,
	),

	fx.Invoke(
		func(h *MessageHandler, r *message.Router, p pubsub.Provider) error {
			return h.RegisterHandlers(r, p)
		},
		runRouter,
	),
)
