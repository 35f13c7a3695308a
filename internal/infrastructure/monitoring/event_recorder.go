package monitoring

import (
	"context"

	"duosync/internal/core/domain"
)

// RecordEvents drives the Prometheus collector from the daemon's event
// stream until ctx is cancelled.
func RecordEvents(ctx context.Context, events <-chan domain.Event, collector *PrometheusCollector) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			recordEvent(event, collector)
		}
	}
}

func recordEvent(event domain.Event, collector *PrometheusCollector) {
	switch event.Type {
	case domain.EventSessionState:
		session, ok := event.Payload.(domain.Session)
		if !ok {
			return
		}
		collector.RecordSessionState(session.State)
		collector.RecordQualityScore(session.QualityScore)
		if !session.Active() && !session.StartedAt.IsZero() {
			collector.RecordSessionEnded(event.Timestamp.Sub(session.StartedAt))
		}

	case domain.EventChatMessage:
		msg, ok := event.Payload.(domain.ChatMessage)
		if !ok {
			return
		}
		collector.RecordChatMessage(msg.FromMe)

	case domain.EventCommonLibrary:
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			return
		}
		if size, ok := payload["size"].(int); ok {
			collector.RecordCommonLibrarySize(size)
		}
	}
}
