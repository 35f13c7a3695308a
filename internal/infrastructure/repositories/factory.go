package repositories

import (
	"duosync/internal/core/ports"
	"duosync/internal/infrastructure/repositories/memory"
	redisrepo "duosync/internal/infrastructure/repositories/redis"
	"duosync/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates registry repositories, falling back to in-memory
// implementations when Redis is disabled or unreachable.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	feed        *redisrepo.ChangeFeed
	cfg         *config.Config
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Registry.Redis.Enabled,
		cfg:      cfg,
		logger:   logger,
	}

	if cfg.Registry.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Registry.Redis.Address,
			cfg.Registry.Redis.Password,
			cfg.Registry.Redis.DB,
			cfg.Registry.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory registry",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			factory.feed = redisrepo.NewChangeFeed(client, logger)
			logger.Info("using Redis registry")
		}
	}

	if !factory.useRedis {
		logger.Info("using in-memory registry")
	}

	return factory, nil
}

// CreateIdentityRepository creates the account <-> Duo ID binding store.
func (f *RepositoryFactory) CreateIdentityRepository() ports.IdentityRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisIdentityRepository(f.redisClient)
	}
	return memory.NewMemoryIdentityRepository()
}

// CreatePresenceRepository creates the presence store.
func (f *RepositoryFactory) CreatePresenceRepository() ports.PresenceRepository {
	if f.useRedis && f.redisClient != nil {
		// Poll at half the lease so a lapsed lease is noticed within one
		// heartbeat of the real expiry.
		return redisrepo.NewRedisPresenceRepository(f.redisClient, f.feed, f.cfg.Presence.Lease/2)
	}
	return memory.NewMemoryPresenceRepository()
}

// CreateMailboxRepository creates the signaling mailbox store.
func (f *RepositoryFactory) CreateMailboxRepository() ports.MailboxRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisMailboxRepository(f.redisClient, f.feed)
	}
	return memory.NewMemoryMailboxRepository()
}

// RedisClient exposes the underlying client for readiness probes; nil when
// the in-memory registry is in use.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

// Close closes the Redis connection if one is in use.
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}
