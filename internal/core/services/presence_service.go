package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"

	"go.uber.org/zap"
)

// PresenceServiceImpl publishes the local peer's presence and keeps its
// liveness lease alive with a heartbeat. If the process dies between
// heartbeats the lease lapses and remote watchers see the peer offline.
type PresenceServiceImpl struct {
	repo      ports.PresenceRepository
	heartbeat time.Duration
	lease     time.Duration
	logger    *zap.SugaredLogger

	mu     sync.Mutex
	id     domain.PeerID
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPresenceService(repo ports.PresenceRepository, heartbeat, lease time.Duration, logger *zap.SugaredLogger) *PresenceServiceImpl {
	return &PresenceServiceImpl{
		repo:      repo,
		heartbeat: heartbeat,
		lease:     lease,
		logger:    logger,
	}
}

func (s *PresenceServiceImpl) Start(ctx context.Context, id domain.PeerID, deviceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("presence already started for %s", s.id)
	}

	rec := domain.PresenceRecord{
		PeerID:     id,
		Online:     true,
		LastSeen:   time.Now(),
		DeviceName: deviceName,
	}
	if err := s.repo.SetOnline(ctx, rec, s.lease); err != nil {
		return fmt.Errorf("failed to go online: %w", err)
	}

	hbCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.id = id
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.heartbeatLoop(hbCtx, id)

	s.logger.Infow("presence started", "peer_id", id, "device", deviceName)
	return nil
}

func (s *PresenceServiceImpl) heartbeatLoop(ctx context.Context, id domain.PeerID) {
	defer close(s.done)

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.repo.Refresh(ctx, id, s.lease); err != nil {
				s.logger.Warnw("presence heartbeat failed", "peer_id", id, "error", err)
			}
		}
	}
}

func (s *PresenceServiceImpl) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil

	// Clean shutdown writes offline synchronously so watchers do not have to
	// wait for the lease to lapse.
	if err := s.repo.SetOffline(ctx, s.id, time.Now()); err != nil {
		return fmt.Errorf("failed to go offline: %w", err)
	}

	s.logger.Infow("presence stopped", "peer_id", s.id)
	return nil
}

func (s *PresenceServiceImpl) Observe(ctx context.Context, id domain.PeerID) (<-chan domain.PresenceRecord, error) {
	return s.repo.Watch(ctx, id)
}

func (s *PresenceServiceImpl) GetOnce(ctx context.Context, id domain.PeerID) (*domain.PresenceRecord, error) {
	rec, err := s.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrPeerNotFound) {
		return nil, nil
	}
	return rec, err
}
