package model

import "time"

// UserID is the opaque, stable identifier issued by the identity store.
type UserID string

func (id UserID) String() string { return string(id) }

// IsZero reports whether the identifier is empty.
func (id UserID) IsZero() bool { return id == "" }

// User is the identity resolved from a bearer token. It is owned by the
// external user store and treated as read-only by the realtime core.
type User struct {
	ID       UserID    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Avatar   string    `json:"avatar,omitempty"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// Peer returns the display projection attached to routed events.
func (u *User) Peer() Peer {
	if u == nil {
		return Peer{}
	}
	return Peer{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Avatar: u.Avatar,
	}
}

// Peer carries the display attributes of a conversation participant.
type Peer struct {
	ID     UserID `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// NewPeer creates a bare peer, typically before enrichment.
func NewPeer(id UserID) Peer {
	return Peer{ID: id}
}

// IsEnriched reports whether display attributes were attached.
func (p Peer) IsEnriched() bool {
	return p.Name != ""
}

// Identity is the outcome of a successful token inspection.
type Identity struct {
	User *User
	// TokenID is the "jti" claim, empty when the issuer did not set one.
	TokenID   string
	ExpiresAt time.Time
}
