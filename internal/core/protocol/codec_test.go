package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		payload interface{}
	}{
		{"play", TypePlay, PlayPayload{SongHash: "abc123", Position: 45000}},
		{"seek", TypeSeek, SeekPayload{Position: 120000}},
		{"shuffle", TypeShuffle, ShufflePayload{Enabled: true}},
		{"repeat", TypeRepeat, RepeatPayload{Mode: "all"}},
		{"add_to_queue", TypeAddToQueue, QueuePayload{SongHash: "def456"}},
		{"sync_library", TypeSyncLibrary, SyncLibraryPayload{
			SongHashes: []SongHashEntry{
				{ID: "1", Hash: "h1", Title: "X", Artist: "Artist1", Duration: 180000},
				{ID: "2", Hash: "h2", Title: "Y", Artist: "Artist2", Duration: 200000},
			},
		}},
		{"sync_response", TypeSyncResponse, SyncResponsePayload{CommonHashes: []string{"h1", "h2"}}},
		{"chat_message", TypeChatMessage, ChatMessagePayload{MessageID: "m1", Text: "hi", SenderName: "Alice"}},
		{"voice_message", TypeVoiceMessage, VoiceMessagePayload{MessageID: "m2", SenderName: "Bob", Duration: 3500, AudioBase64: "AAEC"}},
		{"message_delivered", TypeMessageDelivered, MessageAckPayload{MessageID: "m1"}},
		{"message_read", TypeMessageRead, MessageAckPayload{MessageID: "m1"}},
		{"connection_request", TypeConnectionRequest, ConnectionPayload{PeerID: "123456789012", DeviceName: "Pixel 7"}},
		{"connection_accept", TypeConnectionAccept, ConnectionPayload{PeerID: "210987654321", DeviceName: "Galaxy S23"}},
		{"connection_reject", TypeConnectionReject, ConnectionPayload{PeerID: "210987654321", DeviceName: "Galaxy S23"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msgType, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.msgType, frame.Type)
			assert.NotZero(t, frame.Timestamp)

			data, err := frame.Marshal()
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, frame, decoded)

			payload, err := DecodePayload(decoded)
			require.NoError(t, err)
			require.NotNil(t, payload)

			// Decoded payloads come back as pointers to the typed shape.
			switch expected := tt.payload.(type) {
			case PlayPayload:
				assert.Equal(t, expected, *payload.(*PlayPayload))
			case SeekPayload:
				assert.Equal(t, expected, *payload.(*SeekPayload))
			case ShufflePayload:
				assert.Equal(t, expected, *payload.(*ShufflePayload))
			case RepeatPayload:
				assert.Equal(t, expected, *payload.(*RepeatPayload))
			case QueuePayload:
				assert.Equal(t, expected, *payload.(*QueuePayload))
			case SyncLibraryPayload:
				assert.Equal(t, expected, *payload.(*SyncLibraryPayload))
			case SyncResponsePayload:
				assert.Equal(t, expected, *payload.(*SyncResponsePayload))
			case ChatMessagePayload:
				assert.Equal(t, expected, *payload.(*ChatMessagePayload))
			case VoiceMessagePayload:
				assert.Equal(t, expected, *payload.(*VoiceMessagePayload))
			case MessageAckPayload:
				assert.Equal(t, expected, *payload.(*MessageAckPayload))
			case ConnectionPayload:
				assert.Equal(t, expected, *payload.(*ConnectionPayload))
			}
		})
	}
}

func TestEncodeDecodeEmptyPayloadTypes(t *testing.T) {
	types := []MessageType{
		TypePause, TypeResume, TypeNext, TypePrevious, TypeClearQueue,
		TypeTypingStart, TypeTypingStop, TypeDisconnect, TypeHeartbeat,
	}

	for _, mt := range types {
		t.Run(string(mt), func(t *testing.T) {
			frame, err := Encode(mt, nil)
			require.NoError(t, err)
			assert.Empty(t, frame.Payload)

			data, err := frame.Marshal()
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, frame, decoded)

			payload, err := DecodePayload(decoded)
			require.NoError(t, err)
			assert.Nil(t, payload)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json at all"))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"payload":"{}","timestamp":1}`))
	assert.Error(t, err, "frame without a type must be rejected")
}

func TestDecodePayloadUnknownType(t *testing.T) {
	frame := Frame{Type: "TELEPORT", Payload: "{}", Timestamp: 1}
	_, err := DecodePayload(frame)
	require.Error(t, err)
	assert.IsType(t, ErrUnknownType{}, err)
}

func TestDecodePayloadMalformed(t *testing.T) {
	frame := Frame{Type: TypePlay, Payload: "{broken", Timestamp: 1}
	_, err := DecodePayload(frame)
	assert.Error(t, err)
}
