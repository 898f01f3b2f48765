package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

func setupTestDB(t *testing.T) (*UserRepository, *MessageRepository, *gorm.DB) {
	t.Helper()
	cfg := &config.Config{Database: config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		BreakerFailures: 3,
		BreakerTimeout:  time.Minute,
	}}
	log := slog.New(slog.DiscardHandler)

	db, err := Open(cfg.Database, log)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = Close(db) })

	return NewUserRepository(db, cfg, log), NewMessageRepository(db, cfg, log), db
}

func seedUsers(t *testing.T, users *UserRepository, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, users.Create(context.Background(), &model.User{
			ID: model.UserID(n), Name: "User " + n, Email: n + "@example.com",
		}))
	}
}

func TestUserRepository_FindAndSearch(t *testing.T) {
	req := require.New(t)
	users, _, _ := setupTestDB(t)
	seedUsers(t, users, "alice", "bob", "carol")
	ctx := context.Background()

	u, err := users.FindByID(ctx, "bob")
	req.NoError(err)
	req.Equal("User bob", u.Name)

	_, err = users.FindByID(ctx, "nobody")
	req.ErrorIs(err, model.ErrNotFound)

	found, err := users.FindByIDs(ctx, []model.UserID{"alice", "carol", "nobody"})
	req.NoError(err)
	req.Len(found, 2)

	res, err := users.Search(ctx, "", "alice", 0)
	req.NoError(err)
	req.Len(res, 2)

	res, err = users.Search(ctx, "CAROL@", "alice", 10)
	req.NoError(err)
	req.Len(res, 1)
	req.Equal(model.UserID("carol"), res[0].ID)

	res, err = users.Search(ctx, "%", "", 10)
	req.NoError(err)
	req.Empty(res)
}

func TestUserRepository_SetOnlineStatus(t *testing.T) {
	req := require.New(t)
	users, _, _ := setupTestDB(t)
	seedUsers(t, users, "alice")
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Second)
	req.NoError(users.SetOnlineStatus(ctx, "alice", true, at))

	u, err := users.FindByID(ctx, "alice")
	req.NoError(err)
	req.True(u.IsOnline)
	req.True(at.Equal(u.LastSeen))

	req.ErrorIs(users.SetOnlineStatus(ctx, "ghost", true, at), model.ErrNotFound)
}

func TestMessageRepository_Conversation(t *testing.T) {
	req := require.New(t)
	users, messages, _ := setupTestDB(t)
	seedUsers(t, users, "alice", "bob", "carol")
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	m1 := model.NewMessage("alice", "bob", "hi", "", base)
	m2 := model.NewMessage("bob", "alice", "hey", model.KindText, base.Add(time.Second))
	m3 := model.NewMessage("alice", "carol", "other", "", base.Add(2*time.Second))
	for _, m := range []*model.Message{m1, m2, m3} {
		req.NoError(messages.Create(ctx, m))
	}

	history, err := messages.History(ctx, "bob", "alice", 0)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal(m1.ID, history[0].ID)
	req.Equal(m2.ID, history[1].ID)
	req.Equal("User alice", history[0].Sender.Name)
	req.Equal("User bob", history[0].Receiver.Name)

	last, err := messages.History(ctx, "alice", "bob", 1)
	req.NoError(err)
	req.Len(last, 1)
	req.Equal(m2.ID, last[0].ID)
}

func TestMessageRepository_ReadFlow(t *testing.T) {
	req := require.New(t)
	users, messages, _ := setupTestDB(t)
	seedUsers(t, users, "alice", "bob")
	ctx := context.Background()

	m := model.NewMessage("alice", "bob", "hi", "", time.Now().UTC())
	req.NoError(messages.Create(ctx, m))

	n, err := messages.UnreadCount(ctx, "bob")
	req.NoError(err)
	req.Equal(int64(1), n)

	// Only the receiver may mark it read.
	_, err = messages.MarkRead(ctx, m.ID, "alice", time.Now())
	req.ErrorIs(err, model.ErrNotFound)

	read, err := messages.MarkRead(ctx, m.ID, "bob", time.Now())
	req.NoError(err)
	req.True(read.IsRead)
	req.NotNil(read.ReadAt)
	req.Equal("User alice", read.Sender.Name)

	_, err = messages.MarkRead(ctx, m.ID, "bob", time.Now())
	req.ErrorIs(err, model.ErrNotFound)

	n, err = messages.UnreadCount(ctx, "bob")
	req.NoError(err)
	req.Zero(n)
}

func TestGuard_TripsOnOutageButNotOnMisses(t *testing.T) {
	req := require.New(t)
	users, _, db := setupTestDB(t)
	ctx := context.Background()

	// Misses never open the breaker.
	for i := 0; i < 5; i++ {
		_, err := users.FindByID(ctx, "ghost")
		req.ErrorIs(err, model.ErrNotFound)
	}

	// A dropped table is an outage.
	req.NoError(db.Migrator().DropTable(&userRecord{}))
	for i := 0; i < 3; i++ {
		_, err := users.FindByID(ctx, "ghost")
		req.ErrorIs(err, model.ErrStorage)
	}

	_, err := users.FindByID(ctx, "ghost")
	req.ErrorIs(err, model.ErrStorage)
	req.True(errors.Is(err, gobreaker.ErrOpenState))
}
