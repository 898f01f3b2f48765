package registry

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

// Hubber defines the gateway for user session management and event routing.
type Hubber interface {
	// Register adds the connection and reports the user's 0→1 edge.
	Register(conn Connector) (first bool)
	// Deregister removes the connection and reports the user's 1→0 edge.
	// Unknown connections are a no-op.
	Deregister(userID model.UserID, connID uuid.UUID) (removed, last bool)
	Lookup(userID model.UserID) []Connector
	IsOnline(userID model.UserID) bool
	// Deliver routes the event to every connection of ev.GetUserID().
	// Returns false on a routing miss or mailbox overflow.
	Deliver(ev event.Eventer) bool
	Each(fn func(conn Connector))
	OnlineUsers() []model.UserID
	Stats() model.HubStats
	Shutdown()
}

type hubConfig struct {
	shards      int
	mailboxSize int
	sendTimeout time.Duration
}

type shard struct {
	mu    sync.RWMutex
	cells map[model.UserID]Celler
}

// Hub implements a [SHARDED_REGISTRY] using the Virtual Cell pattern.
//
// A shard lock is held across cell creation/attach and detach/removal so a
// register racing with the last deregister of the same user can never attach
// to a cell that is being dropped.
type Hub struct {
	config    hubConfig
	shards    []*shard
	startedAt time.Time
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: hubConfig{
			shards:      32,
			mailboxSize: 256,
			sendTimeout: 500 * time.Millisecond,
		},
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.config.shards < 1 {
		h.config.shards = 1
	}

	h.shards = make([]*shard, h.config.shards)
	for i := range h.shards {
		h.shards[i] = &shard{cells: make(map[model.UserID]Celler)}
	}
	return h
}

func (h *Hub) shardFor(userID model.UserID) *shard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return h.shards[f.Sum32()%uint32(len(h.shards))]
}

// Register ensures [IDEMPOTENT] cell creation and attaches a new transport.
func (h *Hub) Register(conn Connector) bool {
	s := h.shardFor(conn.GetUserID())
	s.mu.Lock()
	defer s.mu.Unlock()

	cell, ok := s.cells[conn.GetUserID()]
	if !ok {
		// [LAZY_INIT] Create cell only when first connection arrives.
		cell = NewCell(h.config.mailboxSize, h.config.sendTimeout)
		s.cells[conn.GetUserID()] = cell
	}
	added, size := cell.Attach(conn)
	return added && size == 1
}

// Deregister performs [GRACEFUL_RECLAMATION] of resources when sessions end.
func (h *Hub) Deregister(userID model.UserID, connID uuid.UUID) (bool, bool) {
	s := h.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	cell, ok := s.cells[userID]
	if !ok {
		return false, false
	}
	removed, size := cell.Detach(connID)
	if size == 0 {
		// If no sessions left, purge the cell from memory.
		cell.Stop()
		delete(s.cells, userID)
	}
	return removed, removed && size == 0
}

// Lookup filters out connections whose transport has already ended but whose
// deregistration is still in flight.
func (h *Hub) Lookup(userID model.UserID) []Connector {
	s := h.shardFor(userID)
	s.mu.RLock()
	cell, ok := s.cells[userID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return lo.Filter(cell.Sessions(), func(conn Connector, _ int) bool {
		return conn.Err() == nil
	})
}

func (h *Hub) IsOnline(userID model.UserID) bool {
	return len(h.Lookup(userID)) > 0
}

// Deliver routes an event to the specific [USER_CELL].
func (h *Hub) Deliver(ev event.Eventer) bool {
	s := h.shardFor(ev.GetUserID())
	s.mu.RLock()
	cell, ok := s.cells[ev.GetUserID()]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return cell.Push(ev)
}

// Each visits a snapshot of every registered connection. fn runs without any
// hub lock held, so it may block or call back into the hub.
func (h *Hub) Each(fn func(conn Connector)) {
	for _, s := range h.shards {
		s.mu.RLock()
		cells := lo.Values(s.cells)
		s.mu.RUnlock()

		for _, cell := range cells {
			for _, conn := range cell.Sessions() {
				fn(conn)
			}
		}
	}
}

func (h *Hub) OnlineUsers() []model.UserID {
	var out []model.UserID
	for _, s := range h.shards {
		s.mu.RLock()
		out = append(out, lo.Keys(s.cells)...)
		s.mu.RUnlock()
	}
	return out
}

func (h *Hub) Stats() model.HubStats {
	stats := model.HubStats{
		Uptime: time.Since(h.startedAt),
		Shards: make([]model.ShardStats, 0, len(h.shards)),
	}
	for i, s := range h.shards {
		s.mu.RLock()
		users := len(s.cells)
		conns := 0
		for _, cell := range s.cells {
			conns += cell.Len()
		}
		s.mu.RUnlock()

		stats.TotalUsers += users
		stats.TotalConnections += conns
		if users > 0 {
			stats.Shards = append(stats.Shards, model.ShardStats{ShardID: i, UserCount: users, ActiveCells: users})
		}
	}
	return stats
}

// Shutdown closes every connection and stops all cell goroutines. Transport
// loops observe the closed connections and run their own teardown.
func (h *Hub) Shutdown() {
	for _, s := range h.shards {
		s.mu.Lock()
		cells := s.cells
		s.cells = make(map[model.UserID]Celler)
		s.mu.Unlock()

		for _, cell := range cells {
			for _, conn := range cell.Sessions() {
				conn.Close()
			}
			cell.Stop()
		}
	}
}
