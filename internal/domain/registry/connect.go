package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

// Interface guard
var _ Connector = (*connect)(nil)

// [CONNECTOR] THE INTERFACE FOR EXTERNAL LAYERS (REGISTRY/HUB)
// This allows mocking and decoupling from the concrete implementation
type Connector interface {
	GetID() uuid.UUID
	GetUserID() model.UserID
	GetPeer() model.Peer
	GetTokenID() string
	GetCreatedAt() time.Time
	GetMetadata() ConnectMetadata
	Send(ev event.Eventer, timeout time.Duration) bool // Thread-safe send with backpressure handling
	Recv() <-chan event.Eventer
	Done() <-chan struct{}
	Err() error
	// Cause reports why the connection ended; nil while it is alive.
	Cause() error
	State() model.ConnState
	Transition(from, to model.ConnState) bool
	Dropped() uint64
	Close() // Terminate connection and release resources
}

// [METADATA] EXPORTED FOR TRANSPORT AND ANALYTICS LAYERS
type ConnectMetadata struct {
	Platform  string
	Version   string
	RemoteIP  string
	UserAgent string
}

// [CONNECT] CONCRETE IMPLEMENTATION (UNEXPORTED TO FORCE INTERFACE USAGE)
type connect struct {
	id        uuid.UUID
	identity  model.Identity
	metadata  ConnectMetadata
	createdAt time.Time

	ctx      context.Context
	cancelFn context.CancelCauseFunc
	stopFn   context.CancelFunc

	// sendCh is never closed: writers may still hold the connector after
	// teardown, so termination is signalled through ctx instead.
	sendCh    chan event.Eventer
	closeOnce sync.Once

	state          atomic.Int32
	lastActivityAt atomic.Int64
	droppedCount   atomic.Uint64
}

// NewConnector creates the live handle for an authenticated identity.
// The connection context ends at token expiry when the identity carries one.
func NewConnector(ctx context.Context, identity model.Identity, meta ConnectMetadata, bufferSize int) Connector {
	baseCtx, cancelCause := context.WithCancelCause(ctx)
	childCtx, stop := baseCtx, context.CancelFunc(func() {})
	if !identity.ExpiresAt.IsZero() {
		childCtx, stop = context.WithDeadline(baseCtx, identity.ExpiresAt)
	}

	c := &connect{
		id:        uuid.New(),
		identity:  identity,
		metadata:  meta,
		createdAt: time.Now(),
		ctx:       childCtx,
		cancelFn:  cancelCause,
		stopFn:    stop,
		sendCh:    make(chan event.Eventer, bufferSize),
	}
	c.state.Store(int32(model.StateAuthenticated))
	c.lastActivityAt.Store(c.createdAt.UnixNano())
	return c
}

// --- IMPLEMENTATION OF CONNECTOR INTERFACE ---

func (c *connect) GetID() uuid.UUID             { return c.id }
func (c *connect) GetUserID() model.UserID      { return c.identity.User.ID }
func (c *connect) GetPeer() model.Peer          { return c.identity.User.Peer() }
func (c *connect) GetTokenID() string           { return c.identity.TokenID }
func (c *connect) GetCreatedAt() time.Time      { return c.createdAt }
func (c *connect) GetMetadata() ConnectMetadata { return c.metadata }
func (c *connect) Recv() <-chan event.Eventer   { return c.sendCh }
func (c *connect) Done() <-chan struct{}        { return c.ctx.Done() }
func (c *connect) Err() error                   { return c.ctx.Err() }
func (c *connect) Cause() error                 { return context.Cause(c.ctx) }
func (c *connect) Dropped() uint64              { return c.droppedCount.Load() }
func (c *connect) State() model.ConnState       { return model.ConnState(c.state.Load()) }

// Transition moves the lifecycle state from `from` to `to` atomically.
// It returns false when the connection is not in `from`.
func (c *connect) Transition(from, to model.ConnState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Send attempts to push an event into the channel.
// Events are delivered strictly in the order they were accepted. Loss-tolerant
// events are shed when the buffer is full; anything else that cannot be queued
// within timeout ends the connection with ErrSlowConsumer.
func (c *connect) Send(ev event.Eventer, timeout time.Duration) bool {
	// 1. [LIFECYCLE_GATE] Immediately abort if the underlying transport is already dead.
	if c.ctx.Err() != nil {
		return false
	}

	// 2. [FAST_PATH] Free slot in the buffer.
	select {
	case c.sendCh <- ev:
		c.lastActivityAt.Store(time.Now().UnixNano())
		return true
	default:
	}

	// 3. [SHEDDING] Loss-tolerant events never wait for room.
	if ev.GetPriority() <= event.PriorityLow {
		c.droppedCount.Add(1)
		return false
	}

	// 4. [BOUNDED_WAIT] Smooth out transient jitter for anything that matters.
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- ev:
		c.lastActivityAt.Store(time.Now().UnixNano())
		return true
	case <-timer.C:
		// 5. [SLOW_CONSUMER] The client resyncs from history after reconnecting.
		c.droppedCount.Add(1)
		c.closeWith(model.ErrSlowConsumer)
		return false
	}
}

// Close cancels the connection context. It is safe to call from any goroutine,
// any number of times: Hub shutdown, forced invalidation and the transport loop
// may all race here.
func (c *connect) Close() {
	c.closeWith(nil)
}

func (c *connect) closeWith(cause error) {
	c.closeOnce.Do(func() {
		c.cancelFn(cause)
		c.stopFn()
	})
}
