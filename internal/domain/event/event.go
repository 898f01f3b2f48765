package event

import (
	"sync/atomic"

	"github.com/webitel/im-presence-service/internal/domain/model"
)

type EventKind int16

const (
	Connected         EventKind = iota + 1 // [SYSTEM]
	Disconnected                           // [SYSTEM]
	NewMessage                             // [BUSINESS] to receiver
	MessageSent                            // [BUSINESS] ack to sender
	MessageError                           // [BUSINESS] failure to sender
	UserTyping                             // [EPHEMERAL]
	UserStoppedTyping                      // [EPHEMERAL]
	UserOnline                             // [BROADCAST]
	UserOffline                            // [BROADCAST]
)

// wireNames is the outbound vocabulary understood by clients.
var wireNames = map[EventKind]string{
	Connected:         "connected",
	Disconnected:      "disconnected",
	NewMessage:        "new_message",
	MessageSent:       "message_sent",
	MessageError:      "message_error",
	UserTyping:        "user_typing",
	UserStoppedTyping: "user_stopped_typing",
	UserOnline:        "user_online",
	UserOffline:       "user_offline",
}

func (k EventKind) String() string {
	if name, ok := wireNames[k]; ok {
		return name
	}
	return "unknown"
}

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
)

// Eventer defines the contract for all data packets flowing through the Hub.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	// GetUserID is the routing target. Broadcast events return the subject of the event.
	GetUserID() model.UserID
	GetPriority() EventPriority
	GetOccurredAt() int64
	GetPayload() any
	GetCached() any
	SetCached(any)
}

// Exportable defines an event that should be re-published to the message bus.
type Exportable interface {
	// An empty key means the event stays local.
	GetRoutingKey() string
}

// cache holds the transport encoding of an event. The same event instance is
// written to many connections concurrently, so access must be atomic.
type cache struct {
	v atomic.Value
}

func (c *cache) GetCached() any { return c.v.Load() }

func (c *cache) SetCached(v any) {
	if v == nil {
		return
	}
	c.v.Store(v)
}
