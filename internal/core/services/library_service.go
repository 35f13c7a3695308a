package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
	"duosync/internal/core/protocol"

	"go.uber.org/zap"
)

// LibraryServiceImpl reconciles the two peers' music libraries into the
// common library. Reconciliation is digest-based: each side sends its full
// fingerprint list, the receiver intersects and answers with the shared
// digests. The round is acknowledged -- SYNC_LIBRARY is resent until a
// SYNC_RESPONSE arrives or the attempts run out.
type LibraryServiceImpl struct {
	sender  ports.FrameSender
	events  ports.EventPublisher
	metrics ports.MetricsRecorder
	logger  *zap.SugaredLogger

	settleDelay time.Duration
	retryDelay  time.Duration
	attempts    int

	mu           sync.Mutex
	tracks       []domain.Track
	fingerprints []domain.SongFingerprint
	byDigest     map[string]domain.Track
	common       domain.CommonLibrary
	ack          chan struct{}
}

func NewLibraryService(
	sender ports.FrameSender,
	events ports.EventPublisher,
	settleDelay, retryDelay time.Duration,
	attempts int,
	logger *zap.SugaredLogger,
) *LibraryServiceImpl {
	return &LibraryServiceImpl{
		sender:      sender,
		events:      events,
		settleDelay: settleDelay,
		retryDelay:  retryDelay,
		attempts:    attempts,
		logger:      logger,
		byDigest:    make(map[string]domain.Track),
	}
}

// SetMetrics installs the measurement sink. Must be called before StartSync.
func (s *LibraryServiceImpl) SetMetrics(metrics ports.MetricsRecorder) {
	s.metrics = metrics
}

func (s *LibraryServiceImpl) SetLocalLibrary(tracks []domain.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracks = append([]domain.Track(nil), tracks...)
	s.fingerprints = make([]domain.SongFingerprint, 0, len(tracks))
	s.byDigest = make(map[string]domain.Track, len(tracks))
	for _, t := range tracks {
		fp := domain.Fingerprint(t)
		s.fingerprints = append(s.fingerprints, fp)
		s.byDigest[fp.Digest] = t
	}
	s.logger.Infow("local library updated", "tracks", len(tracks))
}

func (s *LibraryServiceImpl) LocalFingerprints() []domain.SongFingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SongFingerprint(nil), s.fingerprints...)
}

// StartSync runs the post-open reconciliation round. The settle delay gives
// the freshly opened channel a moment before the first large frame.
func (s *LibraryServiceImpl) StartSync(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.settleDelay):
	}

	ack := make(chan struct{}, 1)
	s.mu.Lock()
	s.ack = ack
	payload := s.syncPayloadLocked()
	s.mu.Unlock()

	start := time.Now()
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err := s.sender.SendFrame(protocol.TypeSyncLibrary, payload); err != nil {
			return fmt.Errorf("failed to send library sync: %w", err)
		}
		s.logger.Infow("library sync sent", "attempt", attempt, "tracks", len(payload.SongHashes))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ack:
			if s.metrics != nil {
				s.metrics.RecordLibrarySync(time.Since(start), attempt)
			}
			return nil
		case <-time.After(s.retryDelay):
			// No response yet; resend.
		}
	}

	return fmt.Errorf("no sync response after %d attempts", s.attempts)
}

func (s *LibraryServiceImpl) syncPayloadLocked() protocol.SyncLibraryPayload {
	entries := make([]protocol.SongHashEntry, 0, len(s.fingerprints))
	for _, fp := range s.fingerprints {
		entries = append(entries, protocol.SongHashEntry{
			ID:       fp.StableID,
			Hash:     fp.Digest,
			Title:    fp.Title,
			Artist:   fp.Artist,
			Duration: fp.DurationMs,
		})
	}
	return protocol.SyncLibraryPayload{SongHashes: entries}
}

// HandleSyncLibrary intersects the partner's fingerprints with the local
// library and answers with the shared digests. Duplicate SYNC_LIBRARY frames
// recompute the same intersection, so replays are harmless.
func (s *LibraryServiceImpl) HandleSyncLibrary(ctx context.Context, p *protocol.SyncLibraryPayload) error {
	theirs := make(map[string]struct{}, len(p.SongHashes))
	for _, entry := range p.SongHashes {
		theirs[entry.Hash] = struct{}{}
	}

	s.mu.Lock()
	var commonTracks []domain.Track
	var commonDigests []string
	for digest, track := range s.byDigest {
		if _, ok := theirs[digest]; ok {
			commonTracks = append(commonTracks, track)
			commonDigests = append(commonDigests, digest)
		}
	}
	s.common = domain.NewCommonLibrary(commonTracks)
	size := s.common.Size()
	s.mu.Unlock()

	// Reply even when the intersection is empty; the partner's retry loop
	// stops on any response.
	if err := s.sender.SendFrame(protocol.TypeSyncResponse, protocol.SyncResponsePayload{CommonHashes: commonDigests}); err != nil {
		return fmt.Errorf("failed to send sync response: %w", err)
	}

	s.logger.Infow("library reconciled from sync", "common", size, "theirs", len(p.SongHashes))
	s.publishCommon()
	return nil
}

// HandleSyncResponse installs the intersection confirmed by the partner and
// releases the retry loop.
func (s *LibraryServiceImpl) HandleSyncResponse(ctx context.Context, p *protocol.SyncResponsePayload) error {
	s.mu.Lock()
	var commonTracks []domain.Track
	for _, digest := range p.CommonHashes {
		if track, ok := s.byDigest[digest]; ok {
			commonTracks = append(commonTracks, track)
		}
	}
	s.common = domain.NewCommonLibrary(commonTracks)
	size := s.common.Size()
	ack := s.ack
	s.mu.Unlock()

	if ack != nil {
		select {
		case ack <- struct{}{}:
		default:
		}
	}

	s.logger.Infow("library reconciled from response", "common", size)
	s.publishCommon()
	return nil
}

func (s *LibraryServiceImpl) Common() domain.CommonLibrary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.common
}

func (s *LibraryServiceImpl) Reset() {
	s.mu.Lock()
	s.common = domain.CommonLibrary{}
	s.ack = nil
	s.mu.Unlock()
	s.publishCommon()
}

func (s *LibraryServiceImpl) publishCommon() {
	if s.events == nil {
		return
	}
	s.mu.Lock()
	size := s.common.Size()
	s.mu.Unlock()
	s.events.Publish(domain.Event{
		Type:      domain.EventCommonLibrary,
		Timestamp: time.Now(),
		Payload:   map[string]interface{}{"size": size},
	})
}
