package domain

import "time"

// SessionState is the peer session state machine. Terminal states reset to
// Idle on explicit re-initialization.
type SessionState string

const (
	SessionIdle                SessionState = "idle"
	SessionInitializing        SessionState = "initializing"
	SessionGatheringCandidates SessionState = "gathering_candidates"
	SessionWaitingForAnswer    SessionState = "waiting_for_answer"
	SessionConnecting          SessionState = "connecting"
	SessionConnected           SessionState = "connected"
	SessionDisconnected        SessionState = "disconnected"
	SessionError               SessionState = "error"
)

// SessionRole distinguishes the side that created the offer (and the data
// channel) from the side that answered.
type SessionRole string

const (
	RoleOfferer  SessionRole = "offerer"
	RoleAnswerer SessionRole = "answerer"
)

// Session is the runtime-only view of the single active Duo session. It is
// never persisted; a snapshot is handed to observers on every change.
type Session struct {
	LocalID          PeerID
	RemoteID         PeerID
	RemoteDeviceName string
	Role             SessionRole
	State            SessionState
	ChannelOpen      bool
	QualityScore     int // 0-100, defaults to 80 before the first sample
	StartedAt        time.Time
}

// Active reports whether the session occupies the device's single session
// slot (anything past Idle and before a terminal state).
func (s Session) Active() bool {
	switch s.State {
	case SessionIdle, SessionDisconnected, SessionError:
		return false
	}
	return true
}

// TransportSample is one connection-quality measurement pulled from the
// transport while connected.
type TransportSample struct {
	Timestamp time.Time
	RTT       time.Duration
	LossRate  float64 // 0.0 - 1.0
}
