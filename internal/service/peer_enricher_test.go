package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webitel/im-presence-service/internal/domain/model"
)

func TestPeerEnricher_CachesLookups(t *testing.T) {
	req := require.New(t)
	users := newFakeUsers("u1")
	e := NewPeerEnricherService(testConfig(), users)

	p, err := e.ResolvePeer(context.Background(), "u1")
	req.NoError(err)
	req.Equal("name-u1", p.Name)

	_, err = e.ResolvePeer(context.Background(), "u1")
	req.NoError(err)
	req.Equal(1, users.finds)

}

func TestPeerEnricher_CachedPeerExpires(t *testing.T) {
	req := require.New(t)
	users := newFakeUsers("u1")
	cfg := testConfig()
	cfg.Cache.PeerTTL = 20 * time.Millisecond
	e := NewPeerEnricherService(cfg, users)

	_, err := e.ResolvePeer(context.Background(), "u1")
	req.NoError(err)

	req.Eventually(func() bool {
		_, err := e.ResolvePeer(context.Background(), "u1")
		return err == nil && users.findCount() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestPeerEnricher_NotFound(t *testing.T) {
	req := require.New(t)
	e := NewPeerEnricherService(testConfig(), newFakeUsers())

	p, err := e.ResolvePeer(context.Background(), "ghost")
	req.ErrorIs(err, model.ErrNotFound)
	req.Equal(model.UserID("ghost"), p.ID)

	_, err = e.ResolvePeer(context.Background(), "")
	req.ErrorIs(err, model.ErrNotFound)
}

func TestPeerEnricher_PopulateReturnsCopy(t *testing.T) {
	req := require.New(t)
	e := NewEnricherMiddleware(NewPeerEnricherService(testConfig(), newFakeUsers("u1", "u2")), discardLogger())

	msg := model.NewMessage("u1", "u2", "hi", "", time.Now())
	out, err := e.Populate(context.Background(), msg)
	req.NoError(err)

	req.Equal("name-u1", out.Sender.Name)
	req.Equal("name-u2", out.Receiver.Name)
	req.Empty(msg.Sender.Name)
	req.Equal(msg.ID, out.ID)
}

func TestPeerEnricher_PopulateFailureKeepsOriginal(t *testing.T) {
	req := require.New(t)
	e := NewPeerEnricherService(testConfig(), newFakeUsers("u1"))

	msg := model.NewMessage("u1", "gone", "hi", "", time.Now())
	out, err := e.Populate(context.Background(), msg)
	req.ErrorIs(err, model.ErrNotFound)
	req.Same(msg, out)
}
