package memory

import (
	"context"
	"sync"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
)

// MemoryIdentityRepository is the in-process registry used for tests and
// single-device development without Redis.
type MemoryIdentityRepository struct {
	mu     sync.RWMutex
	byID   map[domain.PeerID]domain.AccountID
	byAcct map[domain.AccountID]domain.PeerID
}

func NewMemoryIdentityRepository() ports.IdentityRepository {
	return &MemoryIdentityRepository{
		byID:   make(map[domain.PeerID]domain.AccountID),
		byAcct: make(map[domain.AccountID]domain.PeerID),
	}
}

func (r *MemoryIdentityRepository) Lookup(ctx context.Context, account domain.AccountID) (domain.PeerID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byAcct[account]
	if !exists {
		return "", domain.ErrIdentityMissing
	}
	return id, nil
}

func (r *MemoryIdentityRepository) Exists(ctx context.Context, id domain.PeerID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.byID[id]
	return exists, nil
}

func (r *MemoryIdentityRepository) Claim(ctx context.Context, account domain.AccountID, id domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, exists := r.byID[id]; exists && holder != account {
		return domain.ErrIdentityTaken
	}
	r.byID[id] = account
	r.byAcct[account] = id
	return nil
}

func (r *MemoryIdentityRepository) Release(ctx context.Context, id domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	holder, exists := r.byID[id]
	if !exists {
		return nil
	}
	delete(r.byID, id)
	// After a rebind the account already points at its new ID; only drop the
	// binding when it still references the released one.
	if r.byAcct[holder] == id {
		delete(r.byAcct, holder)
	}
	return nil
}
