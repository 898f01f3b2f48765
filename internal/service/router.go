package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/registry"
)

const (
	ReasonSendFailed       = "Failed to send message"
	ReasonReceiverNotFound = "Receiver not found"
	ReasonInvalidMessage   = "Invalid message"
)

// Router routes client events to the connections of their addressee.
type Router interface {
	// HandleSend persists and delivers a message. The origin always receives
	// exactly one of message_sent or message_error.
	HandleSend(ctx context.Context, origin registry.Connector, req model.SendMessage) error
	HandleTypingStart(ctx context.Context, origin registry.Connector, req model.TypingRequest) error
	HandleTypingStop(ctx context.Context, origin registry.Connector, req model.TypingRequest) error
	// DeliverStored fans out a message persisted elsewhere and reports
	// whether the receiver had a live connection.
	DeliverStored(ctx context.Context, msg *model.Message) bool
}

type EventRouter struct {
	hub      registry.Hubber
	messages MessageStore
	enricher Enricher
	exporter Exporter
	validate *validator.Validate
	tracer   trace.Tracer
	logger   *slog.Logger
	metrics  *metrics.Metrics

	sendTimeout time.Duration
	now         func() time.Time
}

func NewEventRouter(
	cfg *config.Config,
	hub registry.Hubber,
	messages MessageStore,
	enricher Enricher,
	exporter Exporter,
	tracer trace.Tracer,
	logger *slog.Logger,
	m *metrics.Metrics,
) *EventRouter {
	return &EventRouter{
		hub:         hub,
		messages:    messages,
		enricher:    enricher,
		exporter:    exporter,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		tracer:      tracer,
		logger:      logger,
		metrics:     m,
		sendTimeout: cfg.Hub.SendTimeout,
		now:         time.Now,
	}
}

func (r *EventRouter) HandleSend(ctx context.Context, origin registry.Connector, req model.SendMessage) error {
	ctx, span := r.tracer.Start(ctx, "router.send_message", trace.WithAttributes(
		attribute.String("sender", origin.GetUserID().String()),
		attribute.String("receiver", req.ReceiverID.String()),
	))
	defer span.End()

	msg, err := r.send(ctx, origin.GetUserID(), req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.reply(origin, event.NewMessageErrorEvent(origin.GetUserID(), reasonFor(err)))
		return err
	}

	// [ACK] Only the originating connection, the sender's other tabs learn
	// about the message from history.
	r.reply(origin, event.NewMessageSentEvent(msg))
	return nil
}

// send runs validate → receiver check → persist → populate → fan-out.
func (r *EventRouter) send(ctx context.Context, sender model.UserID, req model.SendMessage) (*model.Message, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidEvent, err)
	}

	if _, err := r.enricher.ResolvePeer(ctx, req.ReceiverID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		// Unknown availability of the directory is not a reason to refuse the send.
		r.logger.Warn("RECEIVER_LOOKUP_FAILED", "receiver_id", req.ReceiverID, "err", err)
	}

	msg := model.NewMessage(sender, req.ReceiverID, req.Content, req.MessageType, r.now())

	// [DURABILITY] Nothing is fanned out before the store accepted the message.
	if err := r.messages.Create(ctx, msg); err != nil {
		r.metrics.StoreErrors.WithLabelValues("create_message").Inc()
		r.logger.Error("MESSAGE_PERSIST_FAILED", "sender_id", sender, "receiver_id", req.ReceiverID, "err", err)
		return nil, err
	}

	populated, err := r.enricher.Populate(ctx, msg)
	if err != nil {
		// The message is stored; deliver it with bare participant ids.
		r.logger.Warn("MESSAGE_POPULATE_FALLBACK", "message_id", msg.ID, "err", err)
		populated = msg
	}

	r.fanOut(ctx, populated)
	return populated, nil
}

func (r *EventRouter) DeliverStored(ctx context.Context, msg *model.Message) bool {
	ctx, span := r.tracer.Start(ctx, "router.deliver_stored", trace.WithAttributes(
		attribute.String("message_id", msg.ID.String()),
	))
	defer span.End()

	if !msg.Sender.IsEnriched() || !msg.Receiver.IsEnriched() {
		if populated, err := r.enricher.Populate(ctx, msg); err == nil {
			msg = populated
		}
	}
	return r.fanOut(ctx, msg)
}

// fanOut delivers new_message to every receiver connection and exports it.
func (r *EventRouter) fanOut(ctx context.Context, msg *model.Message) bool {
	ev := event.NewMessageEvent(msg)

	delivered := r.hub.Deliver(ev)
	if delivered {
		r.metrics.EventsRouted.WithLabelValues(ev.GetKind().String()).Inc()
	} else {
		// [ROUTING_MISS] The message stays retrievable through history.
		r.metrics.RoutingMisses.WithLabelValues(ev.GetKind().String()).Inc()
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("delivered", delivered))

	if r.exporter != nil {
		r.exporter.Export(ev)
	}
	return delivered
}

func (r *EventRouter) HandleTypingStart(ctx context.Context, origin registry.Connector, req model.TypingRequest) error {
	return r.typing(ctx, origin, req, model.TypingStart)
}

func (r *EventRouter) HandleTypingStop(ctx context.Context, origin registry.Connector, req model.TypingRequest) error {
	return r.typing(ctx, origin, req, model.TypingStop)
}

// typing is best-effort: misses and full buffers are dropped without notice.
func (r *EventRouter) typing(_ context.Context, origin registry.Connector, req model.TypingRequest, kind model.TypingKind) error {
	if err := r.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidEvent, err)
	}

	ev := event.NewTypingEvent(model.TypingSignal{
		Sender:   origin.GetPeer(),
		Receiver: req.ReceiverID,
		Kind:     kind,
	})
	if r.hub.Deliver(ev) {
		r.metrics.EventsRouted.WithLabelValues(ev.GetKind().String()).Inc()
	} else {
		r.metrics.RoutingMisses.WithLabelValues(ev.GetKind().String()).Inc()
	}
	return nil
}

func (r *EventRouter) reply(origin registry.Connector, ev event.Eventer) {
	if origin.Send(ev, r.sendTimeout) {
		r.metrics.EventsRouted.WithLabelValues(ev.GetKind().String()).Inc()
		return
	}
	r.metrics.EventsDropped.WithLabelValues(ev.GetKind().String()).Inc()
	r.logger.Warn("REPLY_DROPPED", "user_id", origin.GetUserID(), "conn_id", origin.GetID(), "event", ev.GetKind())
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidEvent):
		return ReasonInvalidMessage
	case errors.Is(err, model.ErrNotFound):
		return ReasonReceiverNotFound
	default:
		return ReasonSendFailed
	}
}
