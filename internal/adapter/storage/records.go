package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/webitel/im-presence-service/internal/domain/model"
)

type userRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Name      string    `gorm:"size:100;not null"`
	Email     string    `gorm:"size:255;uniqueIndex;not null"`
	Avatar    string    `gorm:"size:512"`
	IsOnline  bool      `gorm:"not null;default:false"`
	LastSeen  time.Time `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRecord) TableName() string { return "users" }

func (r *userRecord) toModel() *model.User {
	return &model.User{
		ID:       model.UserID(r.ID),
		Name:     r.Name,
		Email:    r.Email,
		Avatar:   r.Avatar,
		IsOnline: r.IsOnline,
		LastSeen: r.LastSeen,
	}
}

func (r *userRecord) toPeer() model.Peer {
	if r == nil || r.ID == "" {
		return model.Peer{}
	}
	return model.Peer{ID: model.UserID(r.ID), Name: r.Name, Email: r.Email, Avatar: r.Avatar}
}

type messageRecord struct {
	ID         string     `gorm:"primaryKey;size:36"`
	SenderID   string     `gorm:"size:64;not null;index:idx_messages_conversation,priority:1"`
	ReceiverID string     `gorm:"size:64;not null;index:idx_messages_conversation,priority:2;index:idx_messages_unread,priority:1"`
	Sender     userRecord `gorm:"foreignKey:SenderID"`
	Receiver   userRecord `gorm:"foreignKey:ReceiverID"`
	Content    string     `gorm:"type:text;not null"`
	Kind       string     `gorm:"size:16;not null;default:text"`
	IsRead     bool       `gorm:"not null;default:false;index:idx_messages_unread,priority:2"`
	ReadAt     *time.Time
	CreatedAt  time.Time `gorm:"index"`
}

func (messageRecord) TableName() string { return "messages" }

func newMessageRecord(m *model.Message) *messageRecord {
	return &messageRecord{
		ID:         m.ID.String(),
		SenderID:   string(m.Sender.ID),
		ReceiverID: string(m.Receiver.ID),
		Content:    m.Content,
		Kind:       string(m.Kind),
		IsRead:     m.IsRead,
		ReadAt:     m.ReadAt,
		CreatedAt:  m.CreatedAt,
	}
}

func (r *messageRecord) toModel() *model.Message {
	sender, receiver := r.Sender.toPeer(), r.Receiver.toPeer()
	if sender.ID.IsZero() {
		sender = model.NewPeer(model.UserID(r.SenderID))
	}
	if receiver.ID.IsZero() {
		receiver = model.NewPeer(model.UserID(r.ReceiverID))
	}

	id, _ := uuid.Parse(r.ID)
	return &model.Message{
		ID:        id,
		Sender:    sender,
		Receiver:  receiver,
		Content:   r.Content,
		Kind:      model.MessageKind(r.Kind),
		IsRead:    r.IsRead,
		ReadAt:    r.ReadAt,
		CreatedAt: r.CreatedAt,
	}
}
