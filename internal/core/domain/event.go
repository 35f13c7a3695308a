package domain

import "time"

// EventType classifies observable state changes pushed to the UI layer.
type EventType string

const (
	EventSessionState  EventType = "session.state"
	EventSessionError  EventType = "session.error"
	EventPresence      EventType = "presence.update"
	EventIncomingOffer EventType = "signaling.offer"
	EventChatMessage   EventType = "chat.message"
	EventChatStatus    EventType = "chat.status"
	EventTyping        EventType = "chat.typing"
	EventCommonLibrary EventType = "library.common"
	EventPlayback      EventType = "playback.command"
)

// Event is a single entry on the observable state stream consumed by the UI
// collaborator.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}
