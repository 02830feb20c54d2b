package core

// ConnState tracks the health of the outbound WHIP connection.
// Exactly one instance exists per publish session.
type ConnState int

const (
	ConnIdle ConnState = iota
	ConnNegotiating
	ConnConnected
	ConnDegraded
	ConnReconnecting
	ConnFailed
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnIdle:
		return "idle"
	case ConnNegotiating:
		return "negotiating"
	case ConnConnected:
		return "connected"
	case ConnDegraded:
		return "degraded"
	case ConnReconnecting:
		return "reconnecting"
	case ConnFailed:
		return "failed"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen without an
// explicit restart by the caller.
func (s ConnState) Terminal() bool {
	return s == ConnFailed || s == ConnClosed
}

// SessionState is the controller lifecycle.
type SessionState int

const (
	SessionNotStarted SessionState = iota
	SessionStarting
	SessionLive
	SessionStopping
	SessionStopped
)

func (s SessionState) String() string {
	switch s {
	case SessionNotStarted:
		return "not_started"
	case SessionStarting:
		return "starting"
	case SessionLive:
		return "live"
	case SessionStopping:
		return "stopping"
	case SessionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
