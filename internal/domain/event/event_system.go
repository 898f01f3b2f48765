package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

var (
	_ Eventer    = (*SystemEvent)(nil)
	_ Exportable = (*SystemEvent)(nil)
)

// SystemEvent is a generic envelope for signals that do not carry a stored message:
// handshake, typing, presence and errors.
type SystemEvent struct {
	cache
	id         string
	userID     model.UserID
	kind       EventKind
	priority   EventPriority
	occurredAt int64
	payload    any
}

func (e *SystemEvent) GetID() string              { return e.id }
func (e *SystemEvent) GetKind() EventKind         { return e.kind }
func (e *SystemEvent) GetUserID() model.UserID    { return e.userID }
func (e *SystemEvent) GetPriority() EventPriority { return e.priority }
func (e *SystemEvent) GetOccurredAt() int64       { return e.occurredAt }
func (e *SystemEvent) GetPayload() any            { return e.payload }

// GetRoutingKey exports presence transitions; everything else stays local.
// [PATTERN] im_delivery.v1.{user}.user.status
func (e *SystemEvent) GetRoutingKey() string {
	switch e.kind {
	case UserOnline, UserOffline:
		return fmt.Sprintf("im_delivery.v1.%s.user.status", e.userID)
	default:
		return ""
	}
}

// NewSystemEvent is a universal factory for creating any signal.
func NewSystemEvent(userID model.UserID, kind EventKind, priority EventPriority, payload any) *SystemEvent {
	return &SystemEvent{
		id:         uuid.NewString(),
		userID:     userID,
		kind:       kind,
		priority:   priority,
		occurredAt: time.Now().UnixMilli(),
		payload:    payload,
	}
}

// NewConnectedEvent is the handshake greeting written right after registration.
func NewConnectedEvent(userID model.UserID, connID uuid.UUID) *SystemEvent {
	return NewSystemEvent(userID, Connected, PriorityNormal, &model.ConnectedPayload{
		Ok:            true,
		ConnectionID:  connID.String(),
		ServerVersion: model.ServerVersion,
	})
}

// NewDisconnectedEvent is the last frame before the server closes a connection.
func NewDisconnectedEvent(userID model.UserID, code, reason string) *SystemEvent {
	return NewSystemEvent(userID, Disconnected, PriorityHigh, &model.DisconnectedPayload{
		Reason: reason,
		Code:   code,
	})
}

// NewMessageErrorEvent reports a failed send back to its sender.
func NewMessageErrorEvent(sender model.UserID, reason string) *SystemEvent {
	return NewSystemEvent(sender, MessageError, PriorityHigh, &model.MessageErrorPayload{Reason: reason})
}

// NewTypingEvent maps a typing signal onto "user_typing"/"user_stopped_typing".
// Typing is loss-tolerant, hence the low priority.
func NewTypingEvent(sig model.TypingSignal) *SystemEvent {
	if sig.Kind == model.TypingStop {
		return NewSystemEvent(sig.Receiver, UserStoppedTyping, PriorityLow, &model.TypingPayload{
			UserID: sig.Sender.ID,
		})
	}
	return NewSystemEvent(sig.Receiver, UserTyping, PriorityLow, &model.TypingPayload{
		UserID: sig.Sender.ID,
		Name:   sig.Sender.Name,
	})
}

// NewPresenceEvent maps a presence transition onto "user_online"/"user_offline".
func NewPresenceEvent(pe model.PresenceEvent) *SystemEvent {
	kind := UserOffline
	if pe.IsOnline() {
		kind = UserOnline
	}
	ev := NewSystemEvent(pe.User.ID, kind, PriorityNormal, &model.PresencePayload{
		UserID: pe.User.ID,
		Name:   pe.User.Name,
		At:     pe.At.UnixMilli(),
	})
	ev.occurredAt = pe.At.UnixMilli()
	return ev
}
