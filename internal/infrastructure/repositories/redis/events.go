package redis

import (
	"context"
	"encoding/json"
	"time"

	"duosync/internal/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventsChannel = "duo:events"

type changeKind string

const (
	changePresence changeKind = "presence.update"
	changeOffer    changeKind = "mailbox.offer"
	changeAnswer   changeKind = "mailbox.answer"
)

type changeEvent struct {
	Kind       changeKind `json:"kind"`
	PeerID     string     `json:"peerId"`
	InstanceID string     `json:"instanceId"`
	Timestamp  time.Time  `json:"timestamp"`
}

// ChangeFeed turns registry writes into push notifications so watchers do not
// have to poll every key. Expired liveness leases produce no notification;
// watchers that care pair the feed with a slow poll.
type ChangeFeed struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
}

// NewChangeFeed creates a change feed bound to this process instance.
func NewChangeFeed(client *redis.Client, logger *zap.SugaredLogger) *ChangeFeed {
	return &ChangeFeed{
		client:     client,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

// publish is best-effort: the underlying write already succeeded, a lost
// notification only delays watchers until their next poll.
func (f *ChangeFeed) publish(ctx context.Context, kind changeKind, id domain.PeerID) {
	event := changeEvent{
		Kind:       kind,
		PeerID:     string(id),
		InstanceID: f.instanceID,
		Timestamp:  time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		f.logger.Warnw("failed to marshal change event", "kind", kind, "error", err)
		return
	}
	if err := f.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		f.logger.Warnw("failed to publish change event",
			"kind", kind,
			"peer_id", id,
			"error", err,
		)
	}
}

// subscribe delivers change events of the given kind for the given peer until
// ctx is cancelled. Events published by this instance are skipped.
func (f *ChangeFeed) subscribe(ctx context.Context, kind changeKind, id domain.PeerID) <-chan changeEvent {
	out := make(chan changeEvent, 8)

	pubsub := f.client.Subscribe(ctx, eventsChannel)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event changeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					f.logger.Warnw("failed to unmarshal change event", "payload", msg.Payload, "error", err)
					continue
				}
				if event.InstanceID == f.instanceID {
					continue
				}
				if event.Kind != kind || event.PeerID != string(id) {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
