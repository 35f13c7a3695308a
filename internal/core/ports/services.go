package ports

import (
	"context"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/protocol"
)

type IdentityService interface {
	// GetOrCreateID returns the account's Duo ID, generating and claiming a
	// fresh one on first use.
	GetOrCreateID(ctx context.Context, account domain.AccountID) (domain.PeerID, error)
	// ChangeID rebinds the account to newID and releases the old ID. Fails
	// with domain.ErrInvalidPeerID or domain.ErrIdentityTaken.
	ChangeID(ctx context.Context, account domain.AccountID, newID domain.PeerID) (domain.PeerID, error)
}

type PresenceService interface {
	// Start publishes the local peer as online and keeps the liveness lease
	// refreshed until Stop or ctx cancellation.
	Start(ctx context.Context, id domain.PeerID, deviceName string) error
	// Stop cancels the heartbeat and performs a final synchronous offline
	// write.
	Stop(ctx context.Context) error
	Observe(ctx context.Context, id domain.PeerID) (<-chan domain.PresenceRecord, error)
	// GetOnce returns the peer's current presence, or nil when the peer has
	// never registered.
	GetOnce(ctx context.Context, id domain.PeerID) (*domain.PresenceRecord, error)
}

type SignalingService interface {
	SendOffer(ctx context.Context, from, to domain.PeerID, sdp, fromDevice string) error
	SendAnswer(ctx context.Context, from, to domain.PeerID, sdp string) error
	// ObserveIncomingOffers emits offers landing in myID's mailbox, filtering
	// out echoes of my own offers.
	ObserveIncomingOffers(ctx context.Context, myID domain.PeerID) (<-chan domain.Offer, error)
	ObserveAnswers(ctx context.Context, myID domain.PeerID) (<-chan domain.Answer, error)
	Clear(ctx context.Context, id domain.PeerID) error
}

type SessionService interface {
	// Run starts the background offer watcher; it blocks until ctx is done.
	Run(ctx context.Context) error
	// Connect initiates a session to the remote peer (offerer side).
	Connect(ctx context.Context, remote domain.PeerID) error
	// Accept answers the pending incoming offer (answerer side).
	Accept(ctx context.Context) error
	// Reject declines the pending incoming offer and clears the mailbox.
	Reject(ctx context.Context) error
	// Disconnect tears the active session down and resets derived state.
	Disconnect(ctx context.Context) error
	// HandleLocalCommand applies a local-origin playback command and notifies
	// the partner. Remote-origin commands are never re-broadcast.
	HandleLocalCommand(ctx context.Context, cmd domain.PlaybackCommand) error
	Snapshot() domain.Session
	PendingOffer() *domain.Offer
}

type LibraryService interface {
	// SetLocalLibrary recomputes fingerprints for the local track list.
	SetLocalLibrary(tracks []domain.Track)
	LocalFingerprints() []domain.SongFingerprint
	// StartSync runs the post-open reconciliation round: settle delay, then
	// SYNC_LIBRARY resent until a SYNC_RESPONSE arrives (bounded attempts).
	StartSync(ctx context.Context) error
	HandleSyncLibrary(ctx context.Context, p *protocol.SyncLibraryPayload) error
	HandleSyncResponse(ctx context.Context, p *protocol.SyncResponsePayload) error
	Common() domain.CommonLibrary
	// Reset clears the common library when the session ends.
	Reset()
}

type ChatService interface {
	SendText(ctx context.Context, text string) (*domain.ChatMessage, error)
	SendVoice(ctx context.Context, audio []byte, durationMs int64) (*domain.ChatMessage, error)
	// MarkRead sends MESSAGE_READ for a received message.
	MarkRead(ctx context.Context, messageID string) error
	// NotifyTyping reports local input activity; TYPING_START is sent once
	// and TYPING_STOP follows after the idle window or on message send.
	NotifyTyping()
	HandleFrame(ctx context.Context, frameType protocol.MessageType, payload interface{}) error
	Messages() []domain.ChatMessage
	// Reset drops chat state when the session ends.
	Reset()
}

// PlaybackController is the external playback collaborator (the local music
// player). Commands carry their origin so implementations can tell applied
// remote commands from user actions.
type PlaybackController interface {
	Apply(ctx context.Context, cmd domain.PlaybackCommand) error
}

// FrameSender delivers one protocol frame to the connected peer. Returns
// domain.ErrChannelClosed when no open data channel exists.
type FrameSender interface {
	SendFrame(frameType protocol.MessageType, payload interface{}) error
}

// EventPublisher fans observable state changes out to the UI layer.
type EventPublisher interface {
	Publish(event domain.Event)
}

// MetricsRecorder receives protocol-level measurements from the session and
// library services. Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	RecordGatheringDuration(d time.Duration)
	RecordFrameSent(frameType protocol.MessageType)
	RecordFrameReceived(frameType protocol.MessageType)
	RecordFrameDropped()
	RecordLibrarySync(d time.Duration, attempts int)
}
