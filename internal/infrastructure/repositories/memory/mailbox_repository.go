package memory

import (
	"context"
	"sync"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
)

// MemoryMailboxRepository keeps one-slot signaling mailboxes in process.
type MemoryMailboxRepository struct {
	mu             sync.Mutex
	boxes          map[domain.PeerID]*domain.Mailbox
	offerWatchers  map[domain.PeerID][]chan domain.Offer
	answerWatchers map[domain.PeerID][]chan domain.Answer
}

func NewMemoryMailboxRepository() ports.MailboxRepository {
	return &MemoryMailboxRepository{
		boxes:          make(map[domain.PeerID]*domain.Mailbox),
		offerWatchers:  make(map[domain.PeerID][]chan domain.Offer),
		answerWatchers: make(map[domain.PeerID][]chan domain.Answer),
	}
}

func (r *MemoryMailboxRepository) PutOffer(ctx context.Context, to domain.PeerID, offer domain.Offer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	box := r.boxLocked(to)
	box.Offer = &offer
	// A new offer invalidates any answer from a previous exchange.
	box.Answer = nil

	for _, ch := range r.offerWatchers[to] {
		select {
		case ch <- offer:
		default:
		}
	}
	return nil
}

func (r *MemoryMailboxRepository) PutAnswer(ctx context.Context, to domain.PeerID, answer domain.Answer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	box := r.boxLocked(to)
	box.Answer = &answer

	for _, ch := range r.answerWatchers[to] {
		select {
		case ch <- answer:
		default:
		}
	}
	return nil
}

func (r *MemoryMailboxRepository) Get(ctx context.Context, id domain.PeerID) (*domain.Mailbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	box := r.boxLocked(id)
	out := &domain.Mailbox{}
	if box.Offer != nil {
		offer := *box.Offer
		out.Offer = &offer
	}
	if box.Answer != nil {
		answer := *box.Answer
		out.Answer = &answer
	}
	return out, nil
}

func (r *MemoryMailboxRepository) Clear(ctx context.Context, id domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boxes, id)
	return nil
}

func (r *MemoryMailboxRepository) WatchOffers(ctx context.Context, id domain.PeerID) (<-chan domain.Offer, error) {
	ch := make(chan domain.Offer, 8)

	r.mu.Lock()
	r.offerWatchers[id] = append(r.offerWatchers[id], ch)
	if box, exists := r.boxes[id]; exists && box.Offer != nil {
		ch <- *box.Offer
	}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.offerWatchers[id]
		for i, sub := range subs {
			if sub == ch {
				r.offerWatchers[id] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

func (r *MemoryMailboxRepository) WatchAnswers(ctx context.Context, id domain.PeerID) (<-chan domain.Answer, error) {
	ch := make(chan domain.Answer, 8)

	r.mu.Lock()
	r.answerWatchers[id] = append(r.answerWatchers[id], ch)
	if box, exists := r.boxes[id]; exists && box.Answer != nil {
		ch <- *box.Answer
	}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.answerWatchers[id]
		for i, sub := range subs {
			if sub == ch {
				r.answerWatchers[id] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

// boxLocked returns the mailbox for id, creating it if needed. Callers hold
// the lock.
func (r *MemoryMailboxRepository) boxLocked(id domain.PeerID) *domain.Mailbox {
	box, exists := r.boxes[id]
	if !exists {
		box = &domain.Mailbox{}
		r.boxes[id] = box
	}
	return box
}
