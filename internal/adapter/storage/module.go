package storage

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/service"
)

var Module = fx.Module("storage",
	fx.Provide(
		func(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
			db, err := Open(cfg.Database, log)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error { return Close(db) },
			})
			return db, nil
		},
		NewUserRepository,
		NewMessageRepository,
		fx.Annotate(
			func(r *UserRepository) *UserRepository { return r },
			fx.As(new(service.UserStore)),
		),
		fx.Annotate(
			func(r *MessageRepository) *MessageRepository { return r },
			fx.As(new(service.MessageStore)),
		),
	),
	fx.Invoke(func(cfg *config.Config, db *gorm.DB, log *slog.Logger) error {
		if !cfg.Database.AutoMigrate {
			return nil
		}
		log.Info("[STORAGE] applying schema", "driver", cfg.Database.Driver)
		return Migrate(db)
	}),
)
