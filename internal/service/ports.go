package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

// UserStore is the durable user directory. Implementations return
// model.ErrNotFound for unknown ids and wrap everything else in model.ErrStorage.
type UserStore interface {
	FindByID(ctx context.Context, id model.UserID) (*model.User, error)
	// FindByIDs silently skips unknown ids.
	FindByIDs(ctx context.Context, ids []model.UserID) ([]*model.User, error)
	Search(ctx context.Context, query string, exclude model.UserID, limit int) ([]*model.User, error)
	SetOnlineStatus(ctx context.Context, id model.UserID, online bool, at time.Time) error
}

// MessageStore is the durable message log.
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	// History returns the conversation between a and b in both directions,
	// oldest first, with participants populated.
	History(ctx context.Context, a, b model.UserID, limit int) ([]*model.Message, error)
	// MarkRead only succeeds for the receiver of the message.
	MarkRead(ctx context.Context, id uuid.UUID, reader model.UserID, at time.Time) (*model.Message, error)
	UnreadCount(ctx context.Context, receiver model.UserID) (int64, error)
}

// Revoker tracks token ids that must no longer authenticate.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Exporter hands events to the event bus without blocking the caller.
type Exporter interface {
	Export(ev event.Eventer) bool
}
