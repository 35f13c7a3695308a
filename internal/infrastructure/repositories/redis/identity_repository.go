package redis

import (
	"context"
	"fmt"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
	"duosync/pkg/distributed"

	"github.com/redis/go-redis/v9"
)

const rebindLockTTL = 10 * time.Second

// RedisIdentityRepository stores account <-> Duo ID bindings. Uniqueness is
// enforced with SETNX on the ID key: whichever device claims an ID first owns
// it, everyone else must pick another candidate. The two-key claim and
// release sequences are serialized per account with a distributed lock so a
// rebind racing from two devices cannot interleave.
type RedisIdentityRepository struct {
	client *redis.Client
	locks  *distributed.LockManager
}

func NewRedisIdentityRepository(client *redis.Client) ports.IdentityRepository {
	return &RedisIdentityRepository{
		client: client,
		locks:  distributed.NewLockManager(client, "duo:lock:"),
	}
}

func idKey(id domain.PeerID) string {
	return "duo:id:" + string(id)
}

func accountKey(account domain.AccountID) string {
	return "duo:account:" + string(account)
}

func (r *RedisIdentityRepository) Lookup(ctx context.Context, account domain.AccountID) (domain.PeerID, error) {
	val, err := r.client.Get(ctx, accountKey(account)).Result()
	if err == redis.Nil {
		return "", domain.ErrIdentityMissing
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up identity binding: %w", err)
	}
	return domain.PeerID(val), nil
}

func (r *RedisIdentityRepository) Exists(ctx context.Context, id domain.PeerID) (bool, error) {
	n, err := r.client.Exists(ctx, idKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check identity existence: %w", err)
	}
	return n > 0, nil
}

func (r *RedisIdentityRepository) Claim(ctx context.Context, account domain.AccountID, id domain.PeerID) error {
	lock := r.locks.AcquireLock("account:"+string(account), rebindLockTTL)
	if err := lock.LockWithTimeout(ctx, rebindLockTTL); err != nil {
		return fmt.Errorf("failed to lock account for claim: %w", err)
	}
	defer lock.Unlock(ctx)

	ok, err := r.client.SetNX(ctx, idKey(id), string(account), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim identity: %w", err)
	}
	if !ok {
		// Re-claiming an ID the account already holds is idempotent.
		holder, err := r.client.Get(ctx, idKey(id)).Result()
		if err != nil {
			return fmt.Errorf("failed to read identity holder: %w", err)
		}
		if holder != string(account) {
			return domain.ErrIdentityTaken
		}
	}

	if err := r.client.Set(ctx, accountKey(account), string(id), 0).Err(); err != nil {
		return fmt.Errorf("failed to store account binding: %w", err)
	}
	return nil
}

func (r *RedisIdentityRepository) Release(ctx context.Context, id domain.PeerID) error {
	holder, err := r.client.Get(ctx, idKey(id)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read identity holder: %w", err)
	}

	lock := r.locks.AcquireLock("account:"+holder, rebindLockTTL)
	if err := lock.LockWithTimeout(ctx, rebindLockTTL); err != nil {
		return fmt.Errorf("failed to lock account for release: %w", err)
	}
	defer lock.Unlock(ctx)

	if err := r.client.Del(ctx, idKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to release identity: %w", err)
	}

	// Drop the account binding only if it still points at the released ID;
	// after a rebind it already points at the new one.
	bound, err := r.client.Get(ctx, accountKey(domain.AccountID(holder))).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read account binding: %w", err)
	}
	if bound == string(id) {
		if err := r.client.Del(ctx, accountKey(domain.AccountID(holder))).Err(); err != nil {
			return fmt.Errorf("failed to drop account binding: %w", err)
		}
	}
	return nil
}
