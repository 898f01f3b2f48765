package amqp

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/webitel/im-presence-service/internal/adapter/pubsub"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, payload *T) error

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to Domain logic, handling Panic Recovery, Locality and Decoding.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		// [PANIC_RECOVERY]
		// Safely handle runtime panics to keep the consumer alive.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
				err = nil
			}
		}()

		// [LOCALITY_FILTER]
		// Only users connected to THIS node are of interest.
		if receiver := model.UserID(msg.Metadata.Get(pubsub.MetadataReceiverID)); !receiver.IsZero() && !h.hub.IsOnline(receiver) {
			return nil // ACK: nobody to deliver to here.
		}

		// [DECODING]
		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
			return nil // ACK: Poison Pill protection.
		}

		// [EXECUTION]
		return fn(msg.Context(), payload) // NACK on error: Retry policy applies.
	}
}
