package model

import "errors"

var (
	// ErrAuthentication rejects a handshake: missing, malformed, expired,
	// revoked token or a subject that no longer exists.
	ErrAuthentication = errors.New("authentication error")

	// ErrStorage marks a failed durable read or write.
	ErrStorage = errors.New("storage error")

	// ErrNotFound is returned by stores when the requested record is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidEvent rejects an inbound event that fails validation.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrSlowConsumer ends a connection that could not accept a message in time.
	ErrSlowConsumer = errors.New("slow consumer")
)
