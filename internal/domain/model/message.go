package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind tags the content of a direct message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
)

// [MESSAGE] CORE ENTITY REPRESENTING A DIRECT MESSAGE
//
// A Message is immutable once constructed; enrichment produces a copy
// through WithPeers instead of mutating the stored value.
type Message struct {
	ID        uuid.UUID   `json:"id"`
	Sender    Peer        `json:"sender"`
	Receiver  Peer        `json:"receiver"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"messageType"`
	IsRead    bool        `json:"isRead"`
	ReadAt    *time.Time  `json:"readAt,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// NewMessage builds a message ready to be persisted.
// An empty kind falls back to KindText.
func NewMessage(sender, receiver UserID, content string, kind MessageKind, at time.Time) *Message {
	if kind == "" {
		kind = KindText
	}
	return &Message{
		ID:        uuid.New(),
		Sender:    NewPeer(sender),
		Receiver:  NewPeer(receiver),
		Content:   content,
		Kind:      kind,
		CreatedAt: at,
	}
}

// WithPeers returns a copy of the message carrying the given display attributes.
func (m *Message) WithPeers(sender, receiver Peer) *Message {
	cp := *m
	cp.Sender = sender
	cp.Receiver = receiver
	return &cp
}

// SendMessage is the inbound "send_message" request.
type SendMessage struct {
	ReceiverID  UserID      `json:"receiverId" validate:"required,max=64"`
	Content     string      `json:"content" validate:"required,max=4096"`
	MessageType MessageKind `json:"messageType,omitempty" validate:"omitempty,oneof=text image file"`
}
