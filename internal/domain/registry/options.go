package registry

import "time"

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithShards sets the number of independently locked partitions.
func WithShards(n int) Option {
	return func(h *Hub) {
		h.config.shards = n
	}
}

// WithMailboxSize sets the [BACKPRESSURE] threshold.
// It defines the buffer capacity for each individual user's cell mailbox.
func WithMailboxSize(size int) Option {
	return func(h *Hub) {
		h.config.mailboxSize = size
	}
}

// WithSendTimeout bounds how long a cell waits on one saturated connection.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.config.sendTimeout = d
	}
}
