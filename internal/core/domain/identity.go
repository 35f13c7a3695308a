package domain

import "time"

// PeerID is the public Duo identifier of a device: exactly 12 ASCII digits.
type PeerID string

// AccountID identifies the signed-in account a PeerID is bound to. Issued by
// the external sign-in provider; opaque to this system.
type AccountID string

// PeerIDLength is the required length of a well-formed PeerID.
const PeerIDLength = 12

// Valid reports whether the ID is exactly 12 ASCII digits.
func (id PeerID) Valid() bool {
	if len(id) != PeerIDLength {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IdentityBinding links an account to its Duo ID in the registry.
type IdentityBinding struct {
	PeerID    PeerID
	AccountID AccountID
	CreatedAt time.Time
}
