package wsmarshaller

import (
	"encoding/json"
	"fmt"

	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

// WSEvent is the outbound frame shared by every server event.
type WSEvent struct {
	Event   string `json:"event"` // e.g. "new_message", "user_online"
	ID      string `json:"id"`
	SentAt  int64  `json:"sent_at"`
	Payload any    `json:"payload"`
}

// MarshalEvent encodes ev once; broadcast events reuse the cached bytes for
// every connection they reach.
func MarshalEvent(ev event.Eventer) ([]byte, error) {
	if cached, ok := ev.GetCached().([]byte); ok {
		return cached, nil
	}

	if ev.GetKind().String() == "unknown" {
		return nil, fmt.Errorf("wsmarshaller: unsupported event kind %d", ev.GetKind())
	}

	data, err := json.Marshal(&WSEvent{
		Event:   ev.GetKind().String(),
		ID:      ev.GetID(),
		SentAt:  ev.GetOccurredAt(),
		Payload: ev.GetPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("wsmarshaller: encode %s: %w", ev.GetKind(), err)
	}

	ev.SetCached(data)
	return data, nil
}

const (
	InboundSendMessage = "send_message"
	InboundTypingStart = "typing_start"
	InboundTypingStop  = "typing_stop"
)

// InboundFrame is a client event before its payload is decoded.
type InboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound is a decoded client event; exactly one of the pointers is set.
type Inbound struct {
	Kind    string
	Message *model.SendMessage
	Typing  *model.TypingRequest
}

// UnmarshalInbound decodes a client frame. Unknown events and malformed
// payloads wrap model.ErrInvalidEvent; for a known event with a bad payload
// the returned Inbound still carries Kind.
func UnmarshalInbound(data []byte) (*Inbound, error) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidEvent, err)
	}

	in := &Inbound{Kind: frame.Event}
	var target any
	switch frame.Event {
	case InboundSendMessage:
		in.Message = &model.SendMessage{}
		target = in.Message
	case InboundTypingStart, InboundTypingStop:
		in.Typing = &model.TypingRequest{}
		target = in.Typing
	default:
		return nil, fmt.Errorf("%w: unknown event %q", model.ErrInvalidEvent, frame.Event)
	}

	if len(frame.Payload) == 0 {
		return &Inbound{Kind: frame.Event}, fmt.Errorf("%w: %s without payload", model.ErrInvalidEvent, frame.Event)
	}
	if err := json.Unmarshal(frame.Payload, target); err != nil {
		return &Inbound{Kind: frame.Event}, fmt.Errorf("%w: %s: %w", model.ErrInvalidEvent, frame.Event, err)
	}
	return in, nil
}
