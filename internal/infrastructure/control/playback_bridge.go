package control

import (
	"context"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"

	"go.uber.org/zap"
)

// PlaybackBridge forwards playback commands to the UI client, which owns the
// actual player. The daemon never plays audio itself; applying a command means
// publishing it on the event stream.
type PlaybackBridge struct {
	events ports.EventPublisher
	logger *zap.SugaredLogger
}

func NewPlaybackBridge(events ports.EventPublisher, logger *zap.SugaredLogger) *PlaybackBridge {
	return &PlaybackBridge{events: events, logger: logger}
}

// Apply implements ports.PlaybackController.
func (b *PlaybackBridge) Apply(ctx context.Context, cmd domain.PlaybackCommand) error {
	b.logger.Debugw("forwarding playback command",
		"action", cmd.Action,
		"origin", cmd.Origin,
	)
	b.events.Publish(domain.Event{
		Type:      domain.EventPlayback,
		Timestamp: time.Now(),
		Payload: map[string]interface{}{
			"action":   string(cmd.Action),
			"origin":   string(cmd.Origin),
			"songHash": cmd.SongDigest,
			"position": cmd.PositionMs,
			"enabled":  cmd.Enabled,
			"mode":     string(cmd.Repeat),
		},
	})
	return nil
}
