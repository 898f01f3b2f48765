package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

type MessageRepository struct {
	db    *gorm.DB
	guard *guard
}

func NewMessageRepository(db *gorm.DB, cfg *config.Config, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, guard: newGuard("messages", cfg.Database, log)}
}

func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	return r.guard.do("create message", func() error {
		// Participants are references only, never upserted from here.
		return r.db.WithContext(ctx).Omit(clause.Associations).Create(newMessageRecord(msg)).Error
	})
}

func (r *MessageRepository) History(ctx context.Context, a, b model.UserID, limit int) ([]*model.Message, error) {
	var recs []messageRecord
	err := r.guard.do("message history", func() error {
		q := r.db.WithContext(ctx).
			Preload("Sender").
			Preload("Receiver").
			Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
				string(a), string(b), string(b), string(a))
		if limit > 0 {
			// Newest page, returned oldest first.
			sub := r.db.Model(&messageRecord{}).Select("id").
				Where("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
					string(a), string(b), string(b), string(a)).
				Order("created_at desc").
				Limit(limit)
			q = q.Where("id IN (?)", sub)
		}
		return q.Order("created_at asc").Find(&recs).Error
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(recs, func(rec messageRecord, _ int) *model.Message { return rec.toModel() }), nil
}

// MarkRead flips an unread message addressed to reader. Anything else,
// including an already read message, is model.ErrNotFound.
func (r *MessageRepository) MarkRead(ctx context.Context, id uuid.UUID, reader model.UserID, at time.Time) (*model.Message, error) {
	var rec messageRecord
	err := r.guard.do("mark read", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&messageRecord{}).
				Where("id = ? AND receiver_id = ? AND is_read = ?", id.String(), string(reader), false).
				Updates(map[string]any{"is_read": true, "read_at": at})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return model.ErrNotFound
			}
			return tx.Preload("Sender").Preload("Receiver").Where("id = ?", id.String()).Take(&rec).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (r *MessageRepository) UnreadCount(ctx context.Context, receiver model.UserID) (int64, error) {
	var n int64
	err := r.guard.do("unread count", func() error {
		return r.db.WithContext(ctx).Model(&messageRecord{}).
			Where("receiver_id = ? AND is_read = ?", string(receiver), false).
			Count(&n).Error
	})
	return n, err
}
