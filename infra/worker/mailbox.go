// Package worker provides a single-consumer bounded mailbox used for
// background work that must stay ordered and must never block producers.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrStopped = errors.New("worker: mailbox stopped")

type Handler[T any] func(ctx context.Context, item T)

type Mailbox[T any] struct {
	name   string
	ch     chan T
	handle Handler[T]
	logger *slog.Logger
	onDrop func()

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	start  sync.Once
}

type Option func(*options)

type options struct {
	logger *slog.Logger
	onDrop func()
}

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithDropHook is called every time Offer rejects an item.
func WithDropHook(fn func()) Option { return func(o *options) { o.onDrop = fn } }

func New[T any](name string, size int, handle Handler[T], opts ...Option) *Mailbox[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if size <= 0 {
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Mailbox[T]{
		name:   name,
		ch:     make(chan T, size),
		handle: handle,
		logger: o.logger.With("worker", name),
		onDrop: o.onDrop,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine. Repeated calls are ignored.
func (m *Mailbox[T]) Start() {
	m.start.Do(func() { go m.loop() })
}

// Offer enqueues without blocking. It returns false when the mailbox is full
// or stopped.
func (m *Mailbox[T]) Offer(item T) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false
	}
	select {
	case m.ch <- item:
		return true
	default:
		if m.onDrop != nil {
			m.onDrop()
		}
		m.logger.Warn("WORKER_MAILBOX_FULL", "capacity", cap(m.ch))
		return false
	}
}

func (m *Mailbox[T]) Len() int { return len(m.ch) }

// Stop rejects new items and drains what is queued. When ctx expires first,
// the handler context is cancelled and Stop returns ctx.Err().
func (m *Mailbox[T]) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return nil
	}
	m.closed = true
	close(m.ch)
	m.mu.Unlock()

	// Drain even if Start was never called.
	m.Start()

	select {
	case <-m.done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-m.done
		return ctx.Err()
	}
}

func (m *Mailbox[T]) loop() {
	defer close(m.done)
	for item := range m.ch {
		m.run(item)
	}
}

func (m *Mailbox[T]) run(item T) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("WORKER_HANDLER_PANIC", "panic", r)
		}
	}()
	m.handle(m.ctx, item)
}
