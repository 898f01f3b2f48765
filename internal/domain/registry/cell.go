/*
Package registry is the in-memory presence table of the realtime core.

Key Architectural Concepts:
  - Virtual Cells: every connected user is represented by an isolated Cell that
    owns all live connections (tabs, devices) of that identity.
  - Decoupling & Backpressure: events for a user go through the cell mailbox, so a
    slow consumer never blocks the router or the sender's connection loop.
  - Sharding: cells live in hash-sharded maps, each guarded by its own RWMutex, so
    connect/disconnect of unrelated users never contend on one lock.
  - No I/O: every operation in this package is memory-only and non-blocking.
*/
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-presence-service/internal/domain/event"
)

// Interface guard
var _ Celler = (*Cell)(nil)

// Celler defines the internal API for user-specific delivery units.
type Celler interface {
	Push(ev event.Eventer) bool
	Attach(conn Connector) (added bool, size int)
	Detach(connID uuid.UUID) (removed bool, size int)
	Sessions() []Connector
	Len() int
	Stop()
}

// Cell implements [ISOLATED_DELIVERY] logic for a single user.
type Cell struct {
	// [MAILBOX]
	// Buffered channel that decouples routing from the per-connection writes.
	mailbox chan event.Eventer

	// [SESSIONS]
	// All live connections of the user, keyed by connection id.
	sessions map[uuid.UUID]Connector
	mu       sync.RWMutex

	sendTimeout time.Duration
	doneCh      chan struct{}
	stopOnce    sync.Once
}

func NewCell(mailboxSize int, sendTimeout time.Duration) *Cell {
	c := &Cell{
		mailbox:     make(chan event.Eventer, mailboxSize),
		sessions:    make(map[uuid.UUID]Connector),
		sendTimeout: sendTimeout,
		doneCh:      make(chan struct{}),
	}
	go c.loop()
	return c
}

// Push enqueues an event for every session of the user. False means the
// mailbox is saturated or the cell already stopped.
func (c *Cell) Push(ev event.Eventer) bool {
	select {
	case <-c.doneCh:
		return false
	default:
	}

	select {
	case c.mailbox <- ev:
		return true
	default:
		return false
	}
}

// Attach is idempotent for the same connection id.
func (c *Cell) Attach(conn Connector) (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[conn.GetID()]; ok {
		return false, len(c.sessions)
	}
	c.sessions[conn.GetID()] = conn
	return true, len(c.sessions)
}

func (c *Cell) Detach(connID uuid.UUID) (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[connID]; !ok {
		return false, len(c.sessions)
	}
	delete(c.sessions, connID)
	return true, len(c.sessions)
}

// Sessions returns a snapshot so callers never iterate under the cell lock.
func (c *Cell) Sessions() []Connector {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Connector, 0, len(c.sessions))
	for _, conn := range c.sessions {
		out = append(out, conn)
	}
	return out
}

func (c *Cell) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case ev := <-c.mailbox:
			c.deliver(ev)
		}
	}
}

func (c *Cell) deliver(ev event.Eventer) {
	for _, conn := range c.Sessions() {
		conn.Send(ev, c.sendTimeout)
	}
}

func (c *Cell) Stop() {
	c.stopOnce.Do(func() { close(c.doneCh) })
}
