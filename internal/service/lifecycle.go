package service

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/infra/metrics"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/domain/registry"
)

const userLockStripes = 64

// Lifecycle is the entry point for transport handlers (WebSocket, admin API).
type Lifecycle interface {
	// Connect authenticates, registers and announces a new connection.
	Connect(ctx context.Context, token string, meta registry.ConnectMetadata) (registry.Connector, error)
	// Disconnect deregisters and closes conn. Only the first call has an effect.
	Disconnect(conn registry.Connector)
	// Invalidate force-closes every connection of the user.
	Invalidate(userID model.UserID, reason string) int
	// InvalidateToken force-closes every connection opened with the token id.
	InvalidateToken(tokenID string) int
}

// ConnectionManager drives connections through
// Authenticated → Registered → Active → Deregistering → Closed.
//
// Register/Deregister and the enqueue of the resulting presence edge happen
// under one per-user stripe lock, so the status queue and the broadcast queue
// observe a user's edges in registry order. No I/O runs under the lock.
type ConnectionManager struct {
	auth     Auther
	hub      registry.Hubber
	status   *StatusWriter
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics

	bufferSize  int
	sendTimeout time.Duration
	now         func() time.Time

	stripes [userLockStripes]sync.Mutex
}

func NewConnectionManager(
	cfg *config.Config,
	auth Auther,
	hub registry.Hubber,
	status *StatusWriter,
	notifier Notifier,
	logger *slog.Logger,
	m *metrics.Metrics,
) *ConnectionManager {
	return &ConnectionManager{
		auth:        auth,
		hub:         hub,
		status:      status,
		notifier:    notifier,
		logger:      logger,
		metrics:     m,
		bufferSize:  cfg.Hub.SendBufferSize,
		sendTimeout: cfg.Hub.SendTimeout,
		now:         time.Now,
	}
}

func (m *ConnectionManager) lockUser(id model.UserID) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &m.stripes[h.Sum32()%userLockStripes]
	mu.Lock()
	return mu.Unlock
}

func (m *ConnectionManager) Connect(ctx context.Context, token string, meta registry.ConnectMetadata) (registry.Connector, error) {
	// 1. [AUTH_GATE] Nothing is registered for a rejected token
	identity, err := m.auth.Inspect(ctx, token)
	if err != nil {
		m.metrics.AuthFailures.Inc()
		m.logger.Info("CONNECT_REJECTED", "remote_ip", meta.RemoteIP, "err", err)
		return nil, err
	}

	// 2. [HANDLE] Starts in Authenticated
	conn := registry.NewConnector(ctx, *identity, meta, m.bufferSize)

	// 3. [REGISTER] Edge detection and announcement are atomic per user
	unlock := m.lockUser(conn.GetUserID())
	first := m.hub.Register(conn)
	if first {
		m.announce(conn.GetPeer(), model.StatusOnline)
	}
	unlock()

	conn.Transition(model.StateAuthenticated, model.StateRegistered)

	m.metrics.ActiveConnections.Inc()
	if first {
		m.metrics.OnlineUsers.Inc()
	}

	conn.Send(event.NewConnectedEvent(conn.GetUserID(), conn.GetID()), m.sendTimeout)

	m.logger.Info("CONNECTION_REGISTERED",
		"user_id", conn.GetUserID(),
		"conn_id", conn.GetID(),
		"platform", meta.Platform,
		"first", first,
	)
	return conn, nil
}

func (m *ConnectionManager) Disconnect(conn registry.Connector) {
	if !conn.Transition(model.StateActive, model.StateDeregistering) &&
		!conn.Transition(model.StateRegistered, model.StateDeregistering) {
		return
	}

	unlock := m.lockUser(conn.GetUserID())
	removed, last := m.hub.Deregister(conn.GetUserID(), conn.GetID())
	if last {
		m.announce(conn.GetPeer(), model.StatusOffline)
	}
	unlock()

	conn.Close()
	conn.Transition(model.StateDeregistering, model.StateClosed)

	if removed {
		m.metrics.ActiveConnections.Dec()
	}
	if last {
		m.metrics.OnlineUsers.Dec()
	}

	m.logger.Info("CONNECTION_DEREGISTERED",
		"user_id", conn.GetUserID(),
		"conn_id", conn.GetID(),
		"last", last,
		"dropped_events", conn.Dropped(),
		"cause", conn.Cause(),
		"lifetime", time.Since(conn.GetCreatedAt()).Round(time.Millisecond).String(),
	)
}

// announce must run under the user's stripe lock.
func (m *ConnectionManager) announce(peer model.Peer, status model.PresenceStatus) {
	at := m.now()
	online := status == model.StatusOnline

	if !m.status.Enqueue(model.StatusUpdate{UserID: peer.ID, Online: online, At: at}) {
		m.logger.Warn("PRESENCE_STATUS_DROPPED", "user_id", peer.ID, "online", online)
	}
	if !m.notifier.NotifyAll(model.PresenceEvent{User: peer, Status: status, At: at}) {
		m.logger.Warn("PRESENCE_BROADCAST_DROPPED", "user_id", peer.ID, "status", status)
	}
}

func (m *ConnectionManager) Invalidate(userID model.UserID, reason string) int {
	return m.closeAll(m.hub.Lookup(userID), model.DisconnectInvalidated, reason)
}

func (m *ConnectionManager) InvalidateToken(tokenID string) int {
	if tokenID == "" {
		return 0
	}
	var conns []registry.Connector
	m.hub.Each(func(conn registry.Connector) {
		if conn.GetTokenID() == tokenID {
			conns = append(conns, conn)
		}
	})
	return m.closeAll(conns, model.DisconnectInvalidated, "token revoked")
}

// Shutdown tells every client why it is being dropped and waits until the
// transport loops have deregistered their connections or ctx expires.
func (m *ConnectionManager) Shutdown(ctx context.Context) error {
	var conns []registry.Connector
	m.hub.Each(func(conn registry.Connector) { conns = append(conns, conn) })
	m.closeAll(conns, model.DisconnectShutdown, "server is shutting down")

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for m.hub.Stats().TotalConnections > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// closeAll queues the disconnected notice before cancelling each connection;
// the owning transport loop flushes it and then calls Disconnect.
func (m *ConnectionManager) closeAll(conns []registry.Connector, code, reason string) int {
	for _, conn := range conns {
		conn.Send(event.NewDisconnectedEvent(conn.GetUserID(), code, reason), m.sendTimeout)
		conn.Close()
	}
	if len(conns) > 0 {
		m.logger.Info("CONNECTIONS_INVALIDATED", "count", len(conns), "code", code, "reason", reason)
	}
	return len(conns)
}
