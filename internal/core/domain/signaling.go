package domain

import "time"

// Offer is a pending SDP offer sitting in a peer's mailbox.
type Offer struct {
	SDP        string
	From       PeerID
	FromDevice string
	Timestamp  time.Time
}

// Answer is a pending SDP answer sitting in the original offerer's mailbox.
type Answer struct {
	SDP       string
	From      PeerID
	Timestamp time.Time
}

// Mailbox is the one-slot signaling record attached to each peer's registry
// node. It holds at most one pending offer and at most one pending answer;
// writing a new offer clears any stale answer. Concurrent offers to the same
// target are last-writer-wins.
type Mailbox struct {
	Offer  *Offer
	Answer *Answer
}

// Empty reports whether neither slot is occupied.
func (m *Mailbox) Empty() bool {
	return m == nil || (m.Offer == nil && m.Answer == nil)
}
