package domain

import "time"

// MessageStatus tracks chat delivery progress. Transitions are monotonic
// (Sending -> Sent -> Delivered -> Read); Failed is terminal. A message never
// regresses to an earlier status.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// CanTransition reports whether moving from s to next is a legal forward
// transition.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return statusRank[next] > statusRank[s]
}

// MessageKind distinguishes text from voice messages.
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageVoice MessageKind = "voice"
)

// ChatMessage is one in-session chat entry. Chat history is runtime-only and
// dropped when the session ends.
type ChatMessage struct {
	ID              string
	Kind            MessageKind
	Text            string
	VoiceAudio      []byte
	VoiceDurationMs int64
	SenderName      string
	FromMe          bool
	Timestamp       time.Time
	Status          MessageStatus
}
