package services

import (
	"context"
	"fmt"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
	"duosync/pkg/circuitbreaker"
	"duosync/pkg/validation"

	"go.uber.org/zap"
)

// SignalingServiceImpl exchanges SDP offers and answers through the registry
// mailboxes. Registry writes go through a circuit breaker so a flapping
// registry fails fast instead of stalling connection attempts.
type SignalingServiceImpl struct {
	boxes   ports.MailboxRepository
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewSignalingService(boxes ports.MailboxRepository, logger *zap.SugaredLogger) *SignalingServiceImpl {
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("registry circuit breaker state changed", "from", from.String(), "to", to.String())
	})
	return &SignalingServiceImpl{
		boxes:   boxes,
		breaker: breaker,
		logger:  logger,
	}
}

func (s *SignalingServiceImpl) SendOffer(ctx context.Context, from, to domain.PeerID, sdp, fromDevice string) error {
	if err := validation.ValidateSDP(sdp); err != nil {
		return fmt.Errorf("invalid offer SDP: %w", err)
	}

	offer := domain.Offer{
		SDP:        sdp,
		From:       from,
		FromDevice: fromDevice,
		Timestamp:  time.Now(),
	}
	err := s.breaker.Execute(ctx, func() error {
		return s.boxes.PutOffer(ctx, to, offer)
	})
	if err != nil {
		return fmt.Errorf("failed to deliver offer: %w", err)
	}

	s.logger.Infow("offer sent", "from", from, "to", to)
	return nil
}

func (s *SignalingServiceImpl) SendAnswer(ctx context.Context, from, to domain.PeerID, sdp string) error {
	if err := validation.ValidateSDP(sdp); err != nil {
		return fmt.Errorf("invalid answer SDP: %w", err)
	}

	answer := domain.Answer{
		SDP:       sdp,
		From:      from,
		Timestamp: time.Now(),
	}
	err := s.breaker.Execute(ctx, func() error {
		return s.boxes.PutAnswer(ctx, to, answer)
	})
	if err != nil {
		return fmt.Errorf("failed to deliver answer: %w", err)
	}

	s.logger.Infow("answer sent", "from", from, "to", to)
	return nil
}

func (s *SignalingServiceImpl) ObserveIncomingOffers(ctx context.Context, myID domain.PeerID) (<-chan domain.Offer, error) {
	raw, err := s.boxes.WatchOffers(ctx, myID)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Offer, 8)
	go func() {
		defer close(out)
		for offer := range raw {
			// My own writes can surface on my mailbox watch; only offers from
			// other peers are real.
			if offer.From == "" || offer.From == myID {
				continue
			}
			select {
			case out <- offer:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *SignalingServiceImpl) ObserveAnswers(ctx context.Context, myID domain.PeerID) (<-chan domain.Answer, error) {
	raw, err := s.boxes.WatchAnswers(ctx, myID)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Answer, 8)
	go func() {
		defer close(out)
		for answer := range raw {
			if answer.From == "" || answer.From == myID {
				continue
			}
			select {
			case out <- answer:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *SignalingServiceImpl) Clear(ctx context.Context, id domain.PeerID) error {
	return s.boxes.Clear(ctx, id)
}
