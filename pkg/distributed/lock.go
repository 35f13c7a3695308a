package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// retryInterval is how long a waiter sleeps between acquisition attempts.
// Registry rebinds finish in a handful of round trips, so contention windows
// are short.
const retryInterval = 50 * time.Millisecond

// DistributedLock serializes multi-key registry sequences across devices
// sharing the same account. The lock key is SET NX with a TTL and renewed at
// half-TTL while held, so a crashed holder frees it within one TTL.
type DistributedLock struct {
	client    *redis.Client
	key       string
	token     string
	ttl       time.Duration
	stopRenew chan struct{}
}

func newDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client:    client,
		key:       key,
		token:     newToken(),
		ttl:       ttl,
		stopRenew: make(chan struct{}),
	}
}

// newToken identifies this holder so Unlock cannot free a lock someone else
// re-acquired after our TTL lapsed.
func newToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// LockWithTimeout acquires the lock, retrying until the wait budget or ctx
// runs out.
func (l *DistributedLock) LockWithTimeout(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)

	for {
		acquired, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
		}
		if acquired {
			go l.renew(ctx)
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for lock %s", l.key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Unlock releases the lock if this instance still holds it. A compare-and-del
// script guards against deleting a lock that expired and was re-acquired.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	close(l.stopRenew)

	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	result, err := l.client.Eval(ctx, script, []string{l.key}, l.token).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if result.(int64) == 0 {
		return fmt.Errorf("lock %s was no longer held by this instance", l.key)
	}
	return nil
}

// renew extends the TTL at half-life while the lock is held.
func (l *DistributedLock) renew(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			current, err := l.client.Get(ctx, l.key).Result()
			if err != nil || current != l.token {
				return
			}
			l.client.Expire(ctx, l.key, l.ttl)
		case <-l.stopRenew:
			return
		case <-ctx.Done():
			return
		}
	}
}

// LockManager mints locks under a shared key prefix.
type LockManager struct {
	client *redis.Client
	prefix string
}

func NewLockManager(client *redis.Client, prefix string) *LockManager {
	return &LockManager{client: client, prefix: prefix}
}

// AcquireLock returns an unacquired lock handle for the given key.
func (lm *LockManager) AcquireLock(key string, ttl time.Duration) *DistributedLock {
	return newDistributedLock(lm.client, lm.prefix+key, ttl)
}
