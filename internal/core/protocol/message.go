package protocol

import "encoding/json"

// MessageType is the closed set of frame types exchanged over the Duo data
// channel. The wire names match the registry protocol exactly and must not be
// renamed.
type MessageType string

const (
	TypePlay       MessageType = "PLAY"
	TypePause      MessageType = "PAUSE"
	TypeResume     MessageType = "RESUME"
	TypeSeek       MessageType = "SEEK"
	TypeNext       MessageType = "NEXT"
	TypePrevious   MessageType = "PREVIOUS"
	TypeShuffle    MessageType = "SHUFFLE"
	TypeRepeat     MessageType = "REPEAT"
	TypeAddToQueue MessageType = "ADD_TO_QUEUE"
	TypeClearQueue MessageType = "CLEAR_QUEUE"

	TypeSyncLibrary  MessageType = "SYNC_LIBRARY"
	TypeSyncResponse MessageType = "SYNC_RESPONSE"

	TypeChatMessage      MessageType = "CHAT_MESSAGE"
	TypeTypingStart      MessageType = "TYPING_START"
	TypeTypingStop       MessageType = "TYPING_STOP"
	TypeMessageDelivered MessageType = "MESSAGE_DELIVERED"
	TypeMessageRead      MessageType = "MESSAGE_READ"
	TypeVoiceMessage     MessageType = "VOICE_MESSAGE"

	TypeConnectionRequest MessageType = "CONNECTION_REQUEST"
	TypeConnectionAccept  MessageType = "CONNECTION_ACCEPT"
	TypeConnectionReject  MessageType = "CONNECTION_REJECT"
	TypeDisconnect        MessageType = "DISCONNECT"
	TypeHeartbeat         MessageType = "HEARTBEAT"
)

// Frame is the wire envelope: the payload is a type-specific JSON document
// carried as a string, not nested JSON.
type Frame struct {
	Type      MessageType `json:"type"`
	Payload   string      `json:"payload"`
	Timestamp int64       `json:"timestamp"` // epoch ms
}

// Marshal serializes the frame for the data channel.
func (f Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}
