package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// ErrUnknownType is returned for frame types outside the closed set. Callers
// drop such frames instead of tearing the session down.
type ErrUnknownType struct {
	Type MessageType
}

func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown message type: %s", e.Type)
}

// Encode builds a frame for the given type. The payload may be nil for types
// that carry none (PAUSE, NEXT, HEARTBEAT, ...).
func Encode(t MessageType, payload interface{}) (Frame, error) {
	frame := Frame{
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		frame.Payload = string(data)
	}
	return frame, nil
}

// Decode parses a raw data channel message into a frame without touching the
// payload.
func Decode(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	if frame.Type == "" {
		return Frame{}, fmt.Errorf("frame has no type")
	}
	return frame, nil
}

// DecodePayload parses the frame's payload into its type-specific shape.
// Types without a payload return nil. An out-of-set type returns
// ErrUnknownType; a payload that does not parse returns an error so the
// caller can drop the single frame.
func DecodePayload(frame Frame) (interface{}, error) {
	switch frame.Type {
	case TypePlay:
		return unmarshalPayload[PlayPayload](frame)
	case TypeSeek:
		return unmarshalPayload[SeekPayload](frame)
	case TypeShuffle:
		return unmarshalPayload[ShufflePayload](frame)
	case TypeRepeat:
		return unmarshalPayload[RepeatPayload](frame)
	case TypeAddToQueue:
		return unmarshalPayload[QueuePayload](frame)
	case TypeSyncLibrary:
		return unmarshalPayload[SyncLibraryPayload](frame)
	case TypeSyncResponse:
		return unmarshalPayload[SyncResponsePayload](frame)
	case TypeChatMessage:
		return unmarshalPayload[ChatMessagePayload](frame)
	case TypeVoiceMessage:
		return unmarshalPayload[VoiceMessagePayload](frame)
	case TypeMessageDelivered, TypeMessageRead:
		return unmarshalPayload[MessageAckPayload](frame)
	case TypeConnectionRequest, TypeConnectionAccept, TypeConnectionReject:
		return unmarshalPayload[ConnectionPayload](frame)
	case TypePause, TypeResume, TypeNext, TypePrevious, TypeClearQueue,
		TypeTypingStart, TypeTypingStop, TypeDisconnect, TypeHeartbeat:
		return nil, nil
	default:
		return nil, ErrUnknownType{Type: frame.Type}
	}
}

func unmarshalPayload[T any](frame Frame) (*T, error) {
	var payload T
	if err := json.Unmarshal([]byte(frame.Payload), &payload); err != nil {
		return nil, fmt.Errorf("malformed %s payload: %w", frame.Type, err)
	}
	return &payload, nil
}
