package monitoring

import (
	"context"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck probes registry connectivity with a ping.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, timeout)
}

// AddRegistryCheck probes the identity registry with a fixed-ID read, the
// same path every lookup takes.
func (h *HealthChecker) AddRegistryCheck(repo ports.IdentityRepository, timeout time.Duration) {
	h.AddCheck("registry", func(ctx context.Context) error {
		_, err := repo.Exists(ctx, domain.PeerID("000000000000"))
		return err
	}, timeout)
}
