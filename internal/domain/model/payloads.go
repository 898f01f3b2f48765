package model

// ServerVersion is reported in the connection handshake.
var ServerVersion = "0.0.0"

// ConnectedPayload represents the data sent to the client upon successful connection.
type ConnectedPayload struct {
	Ok            bool   `json:"ok"`
	ConnectionID  string `json:"connectionId"`
	ServerVersion string `json:"serverVersion"`
}

// DisconnectedPayload represents the notification sent before the server closes the stream.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"` // "SHUTDOWN", "INVALIDATED", "TOKEN_EXPIRED", "SLOW_CONSUMER"
}

// MessageErrorPayload is delivered to the sender when a send cannot complete.
type MessageErrorPayload struct {
	Reason string `json:"reason"`
}

// TypingPayload backs "user_typing" and "user_stopped_typing".
type TypingPayload struct {
	UserID UserID `json:"userId"`
	Name   string `json:"name,omitempty"`
}

// PresencePayload backs "user_online" and "user_offline".
type PresencePayload struct {
	UserID UserID `json:"userId"`
	Name   string `json:"name"`
	At     int64  `json:"at"`
}

const (
	DisconnectShutdown     = "SHUTDOWN"
	DisconnectInvalidated  = "INVALIDATED"
	DisconnectTokenExpired = "TOKEN_EXPIRED"
	DisconnectSlowConsumer = "SLOW_CONSUMER"
)
