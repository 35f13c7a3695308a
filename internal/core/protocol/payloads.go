package protocol

// PlayPayload starts playback of a specific common song at a position.
type PlayPayload struct {
	SongHash string `json:"songHash"`
	Position int64  `json:"position"` // ms
}

// SeekPayload moves the playhead.
type SeekPayload struct {
	Position int64 `json:"position"` // ms
}

// ShufflePayload toggles shuffle.
type ShufflePayload struct {
	Enabled bool `json:"enabled"`
}

// RepeatPayload sets the repeat mode by enum name.
type RepeatPayload struct {
	Mode string `json:"mode"`
}

// QueuePayload adds a common song to the shared queue.
type QueuePayload struct {
	SongHash string `json:"songHash"`
}

// SongHashEntry is one track's fingerprint in a SYNC_LIBRARY frame.
type SongHashEntry struct {
	ID       string `json:"id"`
	Hash     string `json:"hash"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Duration int64  `json:"duration"` // ms
}

// SyncLibraryPayload carries the sender's full fingerprint list.
type SyncLibraryPayload struct {
	SongHashes []SongHashEntry `json:"songHashes"`
}

// SyncResponsePayload carries just the intersecting digests back.
type SyncResponsePayload struct {
	CommonHashes []string `json:"commonHashes"`
}

// ChatMessagePayload is a text chat message.
type ChatMessagePayload struct {
	MessageID  string `json:"messageId"`
	Text       string `json:"text"`
	SenderName string `json:"senderName"`
}

// VoiceMessagePayload is a voice chat message with inline audio.
type VoiceMessagePayload struct {
	MessageID   string `json:"messageId"`
	SenderName  string `json:"senderName"`
	Duration    int64  `json:"duration"` // ms
	AudioBase64 string `json:"audioBase64"`
}

// MessageAckPayload acknowledges delivery or read of a chat message.
type MessageAckPayload struct {
	MessageID string `json:"messageId"`
}

// ConnectionPayload identifies the peer behind a connection control frame.
type ConnectionPayload struct {
	PeerID     string `json:"peerId"`
	DeviceName string `json:"deviceName"`
}
