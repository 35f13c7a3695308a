package services

import (
	"context"
	"testing"

	"duosync/internal/core/domain"
	"duosync/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newIdentityService() (*IdentityServiceImpl, context.Context) {
	repo := memory.NewMemoryIdentityRepository()
	return NewIdentityService(repo, zap.NewNop().Sugar()), context.Background()
}

func TestGetOrCreateIDGeneratesValidID(t *testing.T) {
	svc, ctx := newIdentityService()

	id, err := svc.GetOrCreateID(ctx, "account-a")
	require.NoError(t, err)
	assert.True(t, id.Valid(), "generated ID %q must be 12 digits", id)
}

func TestGetOrCreateIDIsStable(t *testing.T) {
	svc, ctx := newIdentityService()

	first, err := svc.GetOrCreateID(ctx, "account-a")
	require.NoError(t, err)
	second, err := svc.GetOrCreateID(ctx, "account-a")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetOrCreateIDDistinctPerAccount(t *testing.T) {
	svc, ctx := newIdentityService()

	a, err := svc.GetOrCreateID(ctx, "account-a")
	require.NoError(t, err)
	b, err := svc.GetOrCreateID(ctx, "account-b")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestChangeIDRejectsMalformedID(t *testing.T) {
	svc, ctx := newIdentityService()

	_, err := svc.ChangeID(ctx, "account-a", "short")
	assert.ErrorIs(t, err, domain.ErrInvalidPeerID)

	_, err = svc.ChangeID(ctx, "account-a", "12345678901a")
	assert.ErrorIs(t, err, domain.ErrInvalidPeerID)
}

func TestChangeIDRejectsTakenID(t *testing.T) {
	repo := memory.NewMemoryIdentityRepository()
	svc := NewIdentityService(repo, zap.NewNop().Sugar())
	ctx := context.Background()

	require.NoError(t, repo.Claim(ctx, "account-b", "111111111111"))

	_, err := svc.ChangeID(ctx, "account-a", "111111111111")
	assert.ErrorIs(t, err, domain.ErrIdentityTaken)
}

func TestChangeIDReleasesOldID(t *testing.T) {
	repo := memory.NewMemoryIdentityRepository()
	svc := NewIdentityService(repo, zap.NewNop().Sugar())
	ctx := context.Background()

	old, err := svc.GetOrCreateID(ctx, "account-a")
	require.NoError(t, err)

	newID, err := svc.ChangeID(ctx, "account-a", "222222222222")
	require.NoError(t, err)
	assert.Equal(t, domain.PeerID("222222222222"), newID)

	// Old ID is free again for someone else.
	require.NoError(t, repo.Claim(ctx, "account-b", old))

	// The account resolves to the new ID afterwards.
	got, err := svc.GetOrCreateID(ctx, "account-a")
	require.NoError(t, err)
	assert.Equal(t, newID, got)
}

func TestChangeIDToCurrentIDIsNoop(t *testing.T) {
	svc, ctx := newIdentityService()

	id, err := svc.GetOrCreateID(ctx, "account-a")
	require.NoError(t, err)

	got, err := svc.ChangeID(ctx, "account-a", id)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
