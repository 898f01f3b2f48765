package service

import (
	"context"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

// Enricher attaches display attributes to conversation participants.
type Enricher interface {
	// ResolvePeer fails with model.ErrNotFound for unknown users.
	ResolvePeer(ctx context.Context, id model.UserID) (model.Peer, error)
	// ResolvePeers performs concurrent enrichment of both participants.
	ResolvePeers(ctx context.Context, from, to model.UserID) (model.Peer, model.Peer, error)
	// Populate returns a copy of msg with both participants enriched.
	Populate(ctx context.Context, msg *model.Message) (*model.Message, error)
}

type PeerEnricher struct {
	users UserStore
	cache *expirable.LRU[model.UserID, model.Peer]
}

// NewPeerEnricherService provides a thread-safe service with an internal expiring LRU cache.
func NewPeerEnricherService(cfg *config.Config, users UserStore) *PeerEnricher {
	return &PeerEnricher{
		users: users,
		// [MEMORY_MANAGEMENT] Bounded and expiring so renamed users converge.
		cache: expirable.NewLRU[model.UserID, model.Peer](cfg.Cache.PeerSize, nil, cfg.Cache.PeerTTL),
	}
}

// ResolvePeer orchestrates the cache-aside strategy.
func (e *PeerEnricher) ResolvePeer(ctx context.Context, id model.UserID) (model.Peer, error) {
	if id.IsZero() {
		return model.Peer{}, fmt.Errorf("resolve peer: empty id: %w", model.ErrNotFound)
	}

	// [HOT_PATH] Check LRU cache first to avoid a store round trip
	if cached, ok := e.cache.Get(id); ok {
		return cached, nil
	}

	user, err := e.users.FindByID(ctx, id)
	if err != nil {
		return model.NewPeer(id), fmt.Errorf("resolve peer %s: %w", id, err)
	}

	peer := user.Peer()
	e.cache.Add(id, peer)
	return peer, nil
}

// ResolvePeers executes parallel enrichment flows for 'from' and 'to' peers.
// [CONCURRENCY_OPTIMIZATION] Uses errgroup to ensure both lookups complete or fail together.
func (e *PeerEnricher) ResolvePeers(ctx context.Context, from, to model.UserID) (model.Peer, model.Peer, error) {
	g, gCtx := errgroup.WithContext(ctx)

	resFrom, resTo := model.NewPeer(from), model.NewPeer(to)

	g.Go(func() error {
		p, err := e.ResolvePeer(gCtx, from)
		if err == nil {
			resFrom = p
		}
		return err
	})
	g.Go(func() error {
		p, err := e.ResolvePeer(gCtx, to)
		if err == nil {
			resTo = p
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return model.NewPeer(from), model.NewPeer(to), fmt.Errorf("parallel enrichment failed: %w", err)
	}
	return resFrom, resTo, nil
}

func (e *PeerEnricher) Populate(ctx context.Context, msg *model.Message) (*model.Message, error) {
	from, to, err := e.ResolvePeers(ctx, msg.Sender.ID, msg.Receiver.ID)
	if err != nil {
		return msg, err
	}
	return msg.WithPeers(from, to), nil
}
