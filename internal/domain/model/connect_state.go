package model

type ConnState int32

// Per-connection lifecycle:
// Connecting → Authenticated → Registered → Active → Deregistering → Closed.
// Any authentication failure moves Connecting straight to Closed.
const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateRegistered
	StateActive
	StateDeregistering
	StateClosed
)

var connStateNames = [...]string{
	StateConnecting:    "connecting",
	StateAuthenticated: "authenticated",
	StateRegistered:    "registered",
	StateActive:        "active",
	StateDeregistering: "deregistering",
	StateClosed:        "closed",
}

func (s ConnState) String() string {
	if s < 0 || int(s) >= len(connStateNames) {
		return "unknown"
	}
	return connStateNames[s]
}
