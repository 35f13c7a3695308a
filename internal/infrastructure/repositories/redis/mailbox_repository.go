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

// RedisMailboxRepository stores the one-slot signaling mailbox of each peer as
// a hash. Slot writes replace the whole slot; concurrent offers to the same
// target are last-writer-wins.
type RedisMailboxRepository struct {
	client *redis.Client
	feed   *ChangeFeed
}

func NewRedisMailboxRepository(client *redis.Client, feed *ChangeFeed) ports.MailboxRepository {
	return &RedisMailboxRepository{client: client, feed: feed}
}

func mailboxKey(id domain.PeerID) string {
	return "duo:mailbox:" + string(id)
}

func (r *RedisMailboxRepository) PutOffer(ctx context.Context, to domain.PeerID, offer domain.Offer) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, mailboxKey(to), map[string]interface{}{
		"offer":           offer.SDP,
		"offerFrom":       string(offer.From),
		"offerFromDevice": offer.FromDevice,
		"offerTimestamp":  strconv.FormatInt(offer.Timestamp.UnixMilli(), 10),
	})
	// A new offer invalidates any answer left over from a previous exchange.
	pipe.HDel(ctx, mailboxKey(to), "answer", "answerFrom", "answerTimestamp")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to put offer: %w", err)
	}

	r.feed.publish(ctx, changeOffer, to)
	return nil
}

func (r *RedisMailboxRepository) PutAnswer(ctx context.Context, to domain.PeerID, answer domain.Answer) error {
	err := r.client.HSet(ctx, mailboxKey(to), map[string]interface{}{
		"answer":          answer.SDP,
		"answerFrom":      string(answer.From),
		"answerTimestamp": strconv.FormatInt(answer.Timestamp.UnixMilli(), 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to put answer: %w", err)
	}

	r.feed.publish(ctx, changeAnswer, to)
	return nil
}

func (r *RedisMailboxRepository) Get(ctx context.Context, id domain.PeerID) (*domain.Mailbox, error) {
	fields, err := r.client.HGetAll(ctx, mailboxKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox: %w", err)
	}

	box := &domain.Mailbox{}
	if sdp := fields["offer"]; sdp != "" {
		box.Offer = &domain.Offer{
			SDP:        sdp,
			From:       domain.PeerID(fields["offerFrom"]),
			FromDevice: fields["offerFromDevice"],
			Timestamp:  parseMillis(fields["offerTimestamp"]),
		}
	}
	if sdp := fields["answer"]; sdp != "" {
		box.Answer = &domain.Answer{
			SDP:       sdp,
			From:      domain.PeerID(fields["answerFrom"]),
			Timestamp: parseMillis(fields["answerTimestamp"]),
		}
	}
	return box, nil
}

func (r *RedisMailboxRepository) Clear(ctx context.Context, id domain.PeerID) error {
	if err := r.client.Del(ctx, mailboxKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to clear mailbox: %w", err)
	}
	return nil
}

func (r *RedisMailboxRepository) WatchOffers(ctx context.Context, id domain.PeerID) (<-chan domain.Offer, error) {
	out := make(chan domain.Offer, 8)
	events := r.feed.subscribe(ctx, changeOffer, id)

	go func() {
		defer close(out)

		var lastTimestamp time.Time
		emit := func() {
			box, err := r.Get(ctx, id)
			if err != nil || box.Offer == nil {
				return
			}
			// Slot rewrites with the same timestamp are duplicates.
			if !box.Offer.Timestamp.After(lastTimestamp) {
				return
			}
			lastTimestamp = box.Offer.Timestamp
			select {
			case out <- *box.Offer:
			case <-ctx.Done():
			}
		}

		// An offer may already be waiting when the watch starts.
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
			}
		}
	}()

	return out, nil
}

func (r *RedisMailboxRepository) WatchAnswers(ctx context.Context, id domain.PeerID) (<-chan domain.Answer, error) {
	out := make(chan domain.Answer, 8)
	events := r.feed.subscribe(ctx, changeAnswer, id)

	go func() {
		defer close(out)

		var lastTimestamp time.Time
		emit := func() {
			box, err := r.Get(ctx, id)
			if err != nil || box.Answer == nil {
				return
			}
			if !box.Answer.Timestamp.After(lastTimestamp) {
				return
			}
			lastTimestamp = box.Answer.Timestamp
			select {
			case out <- *box.Answer:
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
			}
		}
	}()

	return out, nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
