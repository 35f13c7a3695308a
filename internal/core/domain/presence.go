package domain

import "time"

// PresenceRecord describes a peer's registry presence node. Online is derived:
// a record whose liveness lease has lapsed reads as offline even if the writer
// never got to perform a clean shutdown write.
type PresenceRecord struct {
	PeerID     PeerID
	Online     bool
	LastSeen   time.Time
	DeviceName string
}
