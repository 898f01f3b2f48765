package model

import "time"

// PresenceStatus is the coarse online/offline state broadcast to all parties.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// PresenceEvent is emitted on a user's 0→1 and 1→0 connection edges.
type PresenceEvent struct {
	User   Peer
	Status PresenceStatus
	At     time.Time
}

// IsOnline reports whether the event announces the user as online.
func (e PresenceEvent) IsOnline() bool { return e.Status == StatusOnline }

// StatusUpdate is queued for the durable store after a presence edge.
type StatusUpdate struct {
	UserID UserID
	Online bool
	At     time.Time
}

// TypingKind distinguishes typing start and stop signals.
type TypingKind string

const (
	TypingStart TypingKind = "start"
	TypingStop  TypingKind = "stop"
)

// TypingSignal is ephemeral and never persisted.
type TypingSignal struct {
	Sender   Peer
	Receiver UserID
	Kind     TypingKind
}

// TypingRequest is the inbound "typing_start"/"typing_stop" payload.
type TypingRequest struct {
	ReceiverID UserID `json:"receiverId" validate:"required,max=64"`
}
