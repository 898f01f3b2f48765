package amqp

import (
	"context"

	"github.com/webitel/im-presence-service/internal/domain/model"
)

// [ON_MESSAGE_CREATED]
// Delivers a message persisted outside the realtime path to its receiver.
func (h *MessageHandler) OnMessageCreated(ctx context.Context, msg *model.Message) error {
	if msg.Sender.ID.IsZero() || msg.Receiver.ID.IsZero() {
		h.logger.Warn("MESSAGE_CREATED_INCOMPLETE", "msg_id", msg.ID)
		return nil
	}

	if !h.router.DeliverStored(ctx, msg) {
		// The receiver left between the locality check and delivery.
		h.logger.Debug("MESSAGE_CREATED_NOT_DELIVERED", "msg_id", msg.ID, "receiver_id", msg.Receiver.ID)
	}
	return nil
}
