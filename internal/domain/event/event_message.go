package event

import (
	"fmt"

	"github.com/webitel/im-presence-service/internal/domain/model"
)

var (
	_ Eventer    = (*MessageEvent)(nil)
	_ Exportable = (*MessageEvent)(nil)
)

// MessageEvent wraps a persisted message for one physical recipient.
//
// [STRATEGY]
// It distinguishes between:
//   - [BUSINESS_PEERS] (message.Sender/Receiver): logical participants (the "who").
//   - [ROUTING_TARGET] (userID): the user whose connections receive this instance (the "where").
//
// new_message targets the receiver, message_sent targets the sender.
type MessageEvent struct {
	cache
	kind    EventKind
	message *model.Message
	userID  model.UserID
}

// NewMessageEvent builds a "new_message" event addressed to the receiver.
func NewMessageEvent(msg *model.Message) *MessageEvent {
	return &MessageEvent{kind: NewMessage, message: msg, userID: msg.Receiver.ID}
}

// NewMessageSentEvent builds the "message_sent" acknowledgement addressed to the sender.
func NewMessageSentEvent(msg *model.Message) *MessageEvent {
	return &MessageEvent{kind: MessageSent, message: msg, userID: msg.Sender.ID}
}

func (e *MessageEvent) GetID() string              { return e.message.ID.String() }
func (e *MessageEvent) GetKind() EventKind         { return e.kind }
func (e *MessageEvent) GetUserID() model.UserID    { return e.userID }
func (e *MessageEvent) GetPriority() EventPriority { return PriorityHigh }
func (e *MessageEvent) GetOccurredAt() int64       { return e.message.CreatedAt.UnixMilli() }
func (e *MessageEvent) GetPayload() any            { return e.message }
func (e *MessageEvent) Message() *model.Message    { return e.message }

// GetRoutingKey exports only the receiver-side instance so each message is
// published once. [PATTERN] im_delivery.v1.{receiver}.message.created
func (e *MessageEvent) GetRoutingKey() string {
	if e.kind != NewMessage {
		return ""
	}
	return fmt.Sprintf("im_delivery.v1.%s.message.created", e.message.Receiver.ID)
}
