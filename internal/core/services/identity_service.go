package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
	"duosync/pkg/cache"
	"duosync/pkg/retry"
	"duosync/pkg/utils"

	"go.uber.org/zap"
)

const identityCacheTTL = time.Hour

// IdentityServiceImpl manages the device's own Duo ID: first-use generation,
// registry claims and user-chosen rebinds. Lookups are cached locally; the
// registry stays authoritative.
type IdentityServiceImpl struct {
	repo     ports.IdentityRepository
	cache    *cache.Cache
	claimCfg retry.Config
	logger   *zap.SugaredLogger
}

func NewIdentityService(repo ports.IdentityRepository, logger *zap.SugaredLogger) *IdentityServiceImpl {
	return &IdentityServiceImpl{
		repo:  repo,
		cache: cache.NewCache(identityCacheTTL),
		claimCfg: retry.Config{
			MaxAttempts:  10,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     200 * time.Millisecond,
			Multiplier:   2.0,
			Jitter:       true,
		},
		logger: logger,
	}
}

func (s *IdentityServiceImpl) GetOrCreateID(ctx context.Context, account domain.AccountID) (domain.PeerID, error) {
	cacheKey := "identity:" + string(account)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(domain.PeerID), nil
	}

	id, err := s.repo.Lookup(ctx, account)
	if err == nil {
		s.cache.Set(cacheKey, id)
		return id, nil
	}
	if !errors.Is(err, domain.ErrIdentityMissing) {
		return "", fmt.Errorf("identity lookup failed: %w", err)
	}

	// First use on this account: generate candidates until one claim wins.
	id, err = retry.RetryWithResult(ctx, s.claimCfg, func() (domain.PeerID, error) {
		candidate, err := utils.RandomPeerID()
		if err != nil {
			return "", err
		}
		if err := s.repo.Claim(ctx, account, domain.PeerID(candidate)); err != nil {
			return "", err
		}
		return domain.PeerID(candidate), nil
	})
	if err != nil {
		// Random candidates kept colliding or the registry kept failing; try
		// one timestamp-derived candidate before giving up.
		fallback := domain.PeerID(utils.TimestampPeerID())
		if claimErr := s.repo.Claim(ctx, account, fallback); claimErr != nil {
			return "", fmt.Errorf("failed to claim a Duo ID: %w", err)
		}
		id = fallback
	}

	s.logger.Infow("claimed new Duo ID", "peer_id", id)
	s.cache.Set(cacheKey, id)
	return id, nil
}

func (s *IdentityServiceImpl) ChangeID(ctx context.Context, account domain.AccountID, newID domain.PeerID) (domain.PeerID, error) {
	if !newID.Valid() {
		return "", domain.ErrInvalidPeerID
	}

	current, err := s.repo.Lookup(ctx, account)
	if err != nil && !errors.Is(err, domain.ErrIdentityMissing) {
		return "", fmt.Errorf("identity lookup failed: %w", err)
	}
	if current == newID {
		return current, nil
	}

	if err := s.repo.Claim(ctx, account, newID); err != nil {
		return "", err
	}

	// The old ID is released only after the new claim succeeded, so a failed
	// change never leaves the account without an ID.
	if current != "" {
		if err := s.repo.Release(ctx, current); err != nil {
			s.logger.Warnw("failed to release previous Duo ID",
				"old_id", current,
				"error", err,
			)
		}
	}

	s.logger.Infow("changed Duo ID", "old_id", current, "new_id", newID)
	s.cache.Set("identity:"+string(account), newID)
	return newID, nil
}
