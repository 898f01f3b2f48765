package storage

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

type UserRepository struct {
	db    *gorm.DB
	guard *guard
}

func NewUserRepository(db *gorm.DB, cfg *config.Config, log *slog.Logger) *UserRepository {
	return &UserRepository{db: db, guard: newGuard("users", cfg.Database, log)}
}

// Create is used by seeding and tests; accounts are otherwise owned elsewhere.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	return r.guard.do("create user", func() error {
		return r.db.WithContext(ctx).Create(&userRecord{
			ID:       string(u.ID),
			Name:     u.Name,
			Email:    u.Email,
			Avatar:   u.Avatar,
			IsOnline: u.IsOnline,
			LastSeen: lo.Ternary(u.LastSeen.IsZero(), time.Now(), u.LastSeen),
		}).Error
	})
}

func (r *UserRepository) FindByID(ctx context.Context, id model.UserID) (*model.User, error) {
	var rec userRecord
	err := r.guard.do("find user", func() error {
		return r.db.WithContext(ctx).Where("id = ?", string(id)).Take(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []model.UserID) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var recs []userRecord
	err := r.guard.do("find users", func() error {
		return r.db.WithContext(ctx).
			Where("id IN ?", lo.Map(ids, func(id model.UserID, _ int) string { return string(id) })).
			Order("name asc").
			Find(&recs).Error
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(recs, func(rec userRecord, _ int) *model.User { return rec.toModel() }), nil
}

// Search matches name or email case-insensitively and never returns exclude.
func (r *UserRepository) Search(ctx context.Context, query string, exclude model.UserID, limit int) ([]*model.User, error) {
	var recs []userRecord
	err := r.guard.do("search users", func() error {
		q := r.db.WithContext(ctx).Where("id <> ?", string(exclude))
		if query = strings.TrimSpace(query); query != "" {
			like := "%" + strings.ToLower(escapeLike(query)) + "%"
			q = q.Where("(LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(email) LIKE ? ESCAPE '\\')", like, like)
		}
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Order("name asc").Find(&recs).Error
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(recs, func(rec userRecord, _ int) *model.User { return rec.toModel() }), nil
}

func (r *UserRepository) SetOnlineStatus(ctx context.Context, id model.UserID, online bool, at time.Time) error {
	return r.guard.do("set online status", func() error {
		res := r.db.WithContext(ctx).
			Model(&userRecord{}).
			Where("id = ?", string(id)).
			Updates(map[string]any{"is_online": online, "last_seen": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrNotFound
		}
		return nil
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
