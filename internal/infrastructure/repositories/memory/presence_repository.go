package memory

import (
	"context"
	"sync"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
)

type presenceEntry struct {
	rec   domain.PresenceRecord
	lease *time.Timer
}

// MemoryPresenceRepository keeps presence records in process. Lease expiry is
// modelled with a timer per peer so offline-by-silence behaves like the Redis
// implementation.
type MemoryPresenceRepository struct {
	mu       sync.Mutex
	entries  map[domain.PeerID]*presenceEntry
	watchers map[domain.PeerID][]chan domain.PresenceRecord
}

func NewMemoryPresenceRepository() ports.PresenceRepository {
	return &MemoryPresenceRepository{
		entries:  make(map[domain.PeerID]*presenceEntry),
		watchers: make(map[domain.PeerID][]chan domain.PresenceRecord),
	}
}

func (r *MemoryPresenceRepository) SetOnline(ctx context.Context, rec domain.PresenceRecord, lease time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.Online = true
	entry, exists := r.entries[rec.PeerID]
	if !exists {
		entry = &presenceEntry{}
		r.entries[rec.PeerID] = entry
	}
	if entry.lease != nil {
		entry.lease.Stop()
	}
	entry.rec = rec
	entry.lease = r.expireLater(rec.PeerID, lease)

	r.notifyLocked(rec.PeerID)
	return nil
}

func (r *MemoryPresenceRepository) Refresh(ctx context.Context, id domain.PeerID, lease time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[id]
	if !exists {
		return domain.ErrPeerNotFound
	}
	if entry.lease != nil {
		entry.lease.Stop()
	}
	entry.rec.LastSeen = time.Now()
	entry.lease = r.expireLater(id, lease)
	return nil
}

func (r *MemoryPresenceRepository) SetOffline(ctx context.Context, id domain.PeerID, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[id]
	if !exists {
		return domain.ErrPeerNotFound
	}
	if entry.lease != nil {
		entry.lease.Stop()
		entry.lease = nil
	}
	entry.rec.Online = false
	entry.rec.LastSeen = lastSeen

	r.notifyLocked(id)
	return nil
}

func (r *MemoryPresenceRepository) Get(ctx context.Context, id domain.PeerID) (*domain.PresenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[id]
	if !exists {
		return nil, domain.ErrPeerNotFound
	}
	rec := entry.rec
	return &rec, nil
}

func (r *MemoryPresenceRepository) Watch(ctx context.Context, id domain.PeerID) (<-chan domain.PresenceRecord, error) {
	ch := make(chan domain.PresenceRecord, 8)

	r.mu.Lock()
	r.watchers[id] = append(r.watchers[id], ch)
	if entry, exists := r.entries[id]; exists {
		ch <- entry.rec
	}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.watchers[id]
		for i, sub := range subs {
			if sub == ch {
				r.watchers[id] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

// expireLater flips the peer offline when its lease lapses. Callers hold the
// lock.
func (r *MemoryPresenceRepository) expireLater(id domain.PeerID, lease time.Duration) *time.Timer {
	return time.AfterFunc(lease, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		entry, exists := r.entries[id]
		if !exists || !entry.rec.Online {
			return
		}
		entry.rec.Online = false
		r.notifyLocked(id)
	})
}

func (r *MemoryPresenceRepository) notifyLocked(id domain.PeerID) {
	entry := r.entries[id]
	for _, ch := range r.watchers[id] {
		select {
		case ch <- entry.rec:
		default:
		}
	}
}
