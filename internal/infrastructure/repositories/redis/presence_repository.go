package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisPresenceRepository stores presence records. Online state rides on a
// separate liveness key with a TTL: a crashed peer stops refreshing the lease
// and readers see it offline without any shutdown write.
type RedisPresenceRepository struct {
	client       *redis.Client
	feed         *ChangeFeed
	pollInterval time.Duration
}

func NewRedisPresenceRepository(client *redis.Client, feed *ChangeFeed, pollInterval time.Duration) ports.PresenceRepository {
	return &RedisPresenceRepository{
		client:       client,
		feed:         feed,
		pollInterval: pollInterval,
	}
}

func presenceKey(id domain.PeerID) string {
	return "duo:presence:" + string(id)
}

func livenessKey(id domain.PeerID) string {
	return presenceKey(id) + ":live"
}

func (r *RedisPresenceRepository) SetOnline(ctx context.Context, rec domain.PresenceRecord, lease time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, presenceKey(rec.PeerID), map[string]interface{}{
		"online":     "1",
		"lastSeen":   strconv.FormatInt(rec.LastSeen.UnixMilli(), 10),
		"deviceName": rec.DeviceName,
	})
	pipe.Set(ctx, livenessKey(rec.PeerID), "1", lease)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set presence online: %w", err)
	}

	r.feed.publish(ctx, changePresence, rec.PeerID)
	return nil
}

func (r *RedisPresenceRepository) Refresh(ctx context.Context, id domain.PeerID, lease time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, presenceKey(id), "lastSeen", strconv.FormatInt(time.Now().UnixMilli(), 10))
	pipe.Set(ctx, livenessKey(id), "1", lease)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to refresh presence lease: %w", err)
	}
	return nil
}

func (r *RedisPresenceRepository) SetOffline(ctx context.Context, id domain.PeerID, lastSeen time.Time) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, presenceKey(id), map[string]interface{}{
		"online":   "0",
		"lastSeen": strconv.FormatInt(lastSeen.UnixMilli(), 10),
	})
	pipe.Del(ctx, livenessKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set presence offline: %w", err)
	}

	r.feed.publish(ctx, changePresence, id)
	return nil
}

func (r *RedisPresenceRepository) Get(ctx context.Context, id domain.PeerID) (*domain.PresenceRecord, error) {
	fields, err := r.client.HGetAll(ctx, presenceKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get presence record: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrPeerNotFound
	}

	rec := &domain.PresenceRecord{
		PeerID:     id,
		Online:     fields["online"] == "1",
		DeviceName: fields["deviceName"],
	}
	if ms, err := strconv.ParseInt(fields["lastSeen"], 10, 64); err == nil {
		rec.LastSeen = time.UnixMilli(ms)
	}

	// A record that says online but whose lease has lapsed is offline.
	if rec.Online {
		alive, err := r.client.Exists(ctx, livenessKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check liveness lease: %w", err)
		}
		if alive == 0 {
			rec.Online = false
		}
	}

	return rec, nil
}

func (r *RedisPresenceRepository) Watch(ctx context.Context, id domain.PeerID) (<-chan domain.PresenceRecord, error) {
	out := make(chan domain.PresenceRecord, 8)
	events := r.feed.subscribe(ctx, changePresence, id)

	go func() {
		defer close(out)

		// Lease expiry produces no pub/sub event, so pair the feed with a
		// slow poll to catch crashed peers going offline.
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		var last *domain.PresenceRecord
		emit := func() {
			rec, err := r.Get(ctx, id)
			if err != nil {
				return
			}
			if last != nil && last.Online == rec.Online && last.DeviceName == rec.DeviceName {
				return
			}
			last = rec
			select {
			case out <- *rec:
			case <-ctx.Done():
			}
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				emit()
			case <-ticker.C:
				emit()
			}
		}
	}()

	return out, nil
}
