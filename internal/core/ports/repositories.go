package ports

import (
	"context"
	"time"

	"duosync/internal/core/domain"
)

// IdentityRepository is the shared registry of account <-> Duo ID bindings.
type IdentityRepository interface {
	// Lookup returns the ID already bound to the account, or
	// domain.ErrIdentityMissing.
	Lookup(ctx context.Context, account domain.AccountID) (domain.PeerID, error)
	// Exists reports whether the ID is claimed by any account.
	Exists(ctx context.Context, id domain.PeerID) (bool, error)
	// Claim atomically binds a free ID to the account; returns
	// domain.ErrIdentityTaken when another account holds it.
	Claim(ctx context.Context, account domain.AccountID, id domain.PeerID) error
	// Release frees an ID so it can be claimed again.
	Release(ctx context.Context, id domain.PeerID) error
}

// PresenceRepository stores per-peer presence nodes. Online state is backed by
// a lease: when the writer stops refreshing it, readers see the peer offline
// without any further writer activity.
type PresenceRepository interface {
	SetOnline(ctx context.Context, rec domain.PresenceRecord, lease time.Duration) error
	Refresh(ctx context.Context, id domain.PeerID, lease time.Duration) error
	SetOffline(ctx context.Context, id domain.PeerID, lastSeen time.Time) error
	// Get returns the peer's presence record, or domain.ErrPeerNotFound when
	// the peer has never registered.
	Get(ctx context.Context, id domain.PeerID) (*domain.PresenceRecord, error)
	// Watch emits a record whenever the peer's presence changes. The channel
	// closes when ctx is cancelled.
	Watch(ctx context.Context, id domain.PeerID) (<-chan domain.PresenceRecord, error)
}

// MailboxRepository stores the one-slot signaling mailbox of each peer.
// Writes replace whole slots, never merge.
type MailboxRepository interface {
	// PutOffer writes an offer into the target's mailbox and clears any stale
	// answer in the same write.
	PutOffer(ctx context.Context, to domain.PeerID, offer domain.Offer) error
	// PutAnswer writes an answer into the original offerer's mailbox.
	PutAnswer(ctx context.Context, to domain.PeerID, answer domain.Answer) error
	Get(ctx context.Context, id domain.PeerID) (*domain.Mailbox, error)
	// Clear wipes both slots.
	Clear(ctx context.Context, id domain.PeerID) error
	// WatchOffers emits every offer that lands in the given mailbox.
	WatchOffers(ctx context.Context, id domain.PeerID) (<-chan domain.Offer, error)
	// WatchAnswers emits every answer that lands in the given mailbox.
	WatchAnswers(ctx context.Context, id domain.PeerID) (<-chan domain.Answer, error)
}
