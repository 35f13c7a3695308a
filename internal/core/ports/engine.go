package ports

import "context"

// EngineCallbacks are invoked by the session engine from its own goroutines.
type EngineCallbacks struct {
	// OnOpen fires when the data channel reaches the open state.
	OnOpen func()
	// OnMessage fires for every inbound data channel message.
	OnMessage func(data []byte)
	// OnClose fires once on fatal ICE failure, remote disconnect, or Close.
	OnClose func(reason error)
	// OnQuality fires with each connection-quality sample score (0-100).
	OnQuality func(score int)
}

// SessionEngine drives a single WebRTC peer connection with one ordered
// reliable data channel. One engine per session attempt; terminal engines are
// closed and replaced, never reused.
type SessionEngine interface {
	// CreateOffer builds the local offer, waiting for ICE candidate gathering
	// to finish or time out (non-trickle). Only the offerer creates the data
	// channel.
	CreateOffer(ctx context.Context) (string, error)
	// CreateAnswer applies the remote offer and builds the local answer with
	// the same gathering wait.
	CreateAnswer(ctx context.Context, offerSDP string) (string, error)
	// SetRemoteAnswer applies the peer's answer.
	SetRemoteAnswer(sdp string) error
	// Send pushes bytes on the data channel; false when it is not open.
	Send(data []byte) bool
	// QualityScore returns the latest connection-quality score.
	QualityScore() int
	Close() error
}

// EngineFactory creates a fresh engine per connect/accept attempt.
type EngineFactory interface {
	NewEngine(cb EngineCallbacks) (SessionEngine, error)
}
