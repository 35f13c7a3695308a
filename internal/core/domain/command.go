package domain

// CommandOrigin tags where a playback command came from. Remote-origin
// commands are applied locally but never re-broadcast to the partner, which
// is what prevents two synchronized devices from echoing commands back and
// forth.
type CommandOrigin string

const (
	OriginLocal  CommandOrigin = "local"
	OriginRemote CommandOrigin = "remote"
)

// PlaybackAction enumerates the transport-control operations shared between
// peers.
type PlaybackAction string

const (
	ActionPlay       PlaybackAction = "play"
	ActionPause      PlaybackAction = "pause"
	ActionResume     PlaybackAction = "resume"
	ActionSeek       PlaybackAction = "seek"
	ActionNext       PlaybackAction = "next"
	ActionPrevious   PlaybackAction = "previous"
	ActionShuffle    PlaybackAction = "shuffle"
	ActionRepeat     PlaybackAction = "repeat"
	ActionAddToQueue PlaybackAction = "add_to_queue"
	ActionClearQueue PlaybackAction = "clear_queue"
)

// RepeatMode mirrors the player's repeat setting.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatOne RepeatMode = "one"
	RepeatAll RepeatMode = "all"
)

// PlaybackCommand is one transport-control operation with its parameters.
// Only the fields relevant to the action are set.
type PlaybackCommand struct {
	Action     PlaybackAction
	Origin     CommandOrigin
	SongDigest string
	PositionMs int64
	Enabled    bool
	Repeat     RepeatMode
}
