package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/webitel/im-presence-service/internal/adapter/pubsub"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	"github.com/webitel/im-presence-service/internal/service"
)

const (
	// ------------------- QUEUES (CONSUMERS) --------------------
	PresenceProcessorQueue = "im-presence.incoming-processor.v1"
	PresencePoisonTopic    = "im-presence.incoming-processor.v1.poison"
)

type MessageHandler struct {
	hub        registry.Hubber
	logger     *slog.Logger
	router     service.Router
	dispatcher pubsub.EventDispatcher
}

func NewMessageHandler(hub registry.Hubber, logger *slog.Logger, router service.Router, dispatcher pubsub.EventDispatcher) *MessageHandler {
	return &MessageHandler{hub: hub, logger: logger, router: router, dispatcher: dispatcher}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("WATERMILL_ROUTER_FAILED: %w", err)
	}
	r.AddMiddleware(middleware.Recoverer)
	return r, nil
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(router *message.Router, provider pubsub.Provider) error {
	poison, err := middleware.PoisonQueue(h.dispatcher.Publisher(), PresencePoisonTopic)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name     string
		exchange string
		topic    string
		handler  message.NoPublishHandlerFunc
	}{
		{"ON_MSG_CREATED", pubsub.InboundExchange, pubsub.TopicMessageCreated, Bind(h, h.OnMessageCreated)},
	}

	instanceID := uuid.NewString()[:8]
	for _, c := range configs {
		// [UNIQUE_HANDLER_QUEUE]
		// One queue per handler per node, e.g. im-presence.incoming-processor.v1.b23a8f12.ON_MSG_CREATED
		handlerQueue := fmt.Sprintf("%s.%s.%s", PresenceProcessorQueue, instanceID, c.name)

		sub, err := provider.Subscriber(handlerQueue, c.exchange, c.topic)
		if err != nil {
			return err
		}

		router.AddConsumerHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceContextMiddleware,
			LoggingMiddleware(h.logger),
			poison,
			NewRetryMiddleware(h.logger).Middleware,
			middleware.NewThrottle(200, time.Second).Middleware,
			middleware.Timeout(30*time.Second),
		)
	}

	h.logger.Info("AMQP_PIPELINE_READY", "queue", PresenceProcessorQueue, "instance", instanceID)
	return nil
}

// runRouter ties the watermill router to the fx lifecycle.
func runRouter(lc fx.Lifecycle, router *message.Router, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("WATERMILL_ROUTER_STOPPED", "err", err)
				}
			}()
			<-router.Running()
			return nil
		},
		OnStop: func(context.Context) error {
			return router.Close()
		},
	})
}
