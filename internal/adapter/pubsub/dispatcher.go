// internal/adapter/pubsub/dispatcher.go

package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

const (
	// InboundExchange carries messages created outside the realtime path.
	InboundExchange     = "im_message.events"
	TopicMessageCreated = "im_message.v1.message.created"

	MetadataRoutingKey = "routing_key"
	MetadataReceiverID = "receiver_id"
	MetadataEvent      = "event"
)

// Envelope is the body of every exported event.
type Envelope struct {
	ID         string       `json:"id"`
	Event      string       `json:"event"`
	UserID     model.UserID `json:"userId"`
	OccurredAt int64        `json:"occurredAt"`
	Payload    any          `json:"payload"`
}

// EventDispatcher defines the high-level contract for outgoing bus traffic.
// This allows handlers to stay agnostic of the transport implementation.
type EventDispatcher interface {
	// Publish exports an event under its routing key. Events without one are skipped.
	Publish(ctx context.Context, ev event.Eventer) error
	// Announce puts a stored message on the inbound topic for live delivery.
	Announce(ctx context.Context, msg *model.Message) error
	// Publisher is the inbound-exchange publisher, used for poison routing.
	Publisher() message.Publisher
}

type eventDispatcher struct {
	events  message.Publisher
	inbound message.Publisher
}

func NewEventDispatcher(events, inbound message.Publisher) EventDispatcher {
	return &eventDispatcher{events: events, inbound: inbound}
}

func (d *eventDispatcher) Publish(ctx context.Context, ev event.Eventer) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}
	exp, ok := ev.(event.Exportable)
	if !ok || exp.GetRoutingKey() == "" {
		return nil
	}

	payload, err := json.Marshal(Envelope{
		ID:         ev.GetID(),
		Event:      ev.GetKind().String(),
		UserID:     ev.GetUserID(),
		OccurredAt: ev.GetOccurredAt(),
		Payload:    ev.GetPayload(),
	})
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	topic := exp.GetRoutingKey()
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataRoutingKey, topic)
	msg.Metadata.Set(MetadataEvent, ev.GetKind().String())
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
	msg.SetContext(ctx)

	if err := d.events.Publish(topic, msg); err != nil {
		return fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

func (d *eventDispatcher) Announce(ctx context.Context, m *model.Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataRoutingKey, TopicMessageCreated)
	msg.Metadata.Set(MetadataReceiverID, m.Receiver.ID.String())
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Metadata))
	msg.SetContext(ctx)

	if err := d.inbound.Publish(TopicMessageCreated, msg); err != nil {
		return fmt.Errorf("event dispatcher: failed to announce message %s: %w", m.ID, err)
	}
	return nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.inbound
}
