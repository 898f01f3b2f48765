package amqp

import (
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// [TRACE_CONTEXT_MIDDLEWARE]
// Restores the W3C trace context carried in message metadata.
func TraceContextMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		carrier := propagation.MapCarrier(msg.Metadata)
		msg.SetContext(otel.GetTextMapPropagator().Extract(msg.Context(), carrier))
		return h(msg)
	}
}

// [LOGGING_MIDDLEWARE]
// Structured logging with latency.
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := h(msg)

			logger.Debug("MESSAGE_HANDLED",
				"msg_id", msg.UUID,
				"handler", message.HandlerNameFromCtx(msg.Context()),
				"duration_ms", time.Since(start).Milliseconds(),
				"success", err == nil,
			)
			return msgs, err
		}
	}
}

// [RETRY_MIDDLEWARE]
func NewRetryMiddleware(logger *slog.Logger) middleware.Retry {
	return middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		OnRetryHook: func(attempt int, delay time.Duration) {
			logger.Warn("MESSAGE_RETRY", "attempt", attempt, "delay", delay)
		},
	}
}
