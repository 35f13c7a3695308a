package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	err := NewPeerStateError("peer already in a session")
	assert.Contains(t, err.Error(), "PEER_STATE")
	assert.Contains(t, err.Error(), "peer already in a session")

	wrapped := NewTransientRegistryError(errors.New("connection refused"), "SETNX")
	assert.Contains(t, wrapped.Error(), "TRANSIENT_REGISTRY")
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewICEFatalError(cause, "gathering")
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestWithContext(t *testing.T) {
	err := NewProtocolDropError(errors.New("bad json"), "PLAY").
		WithContext("peer_id", "123456789012")
	assert.Equal(t, "123456789012", err.Context["peer_id"])
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, NewTransientRegistryError(errors.New("x"), "GET").HTTPStatus)
	assert.Equal(t, http.StatusConflict, NewPeerStateError("x").HTTPStatus)
	assert.Equal(t, http.StatusBadGateway, NewICEFatalError(errors.New("x"), "answer").HTTPStatus)
	assert.Equal(t, http.StatusNotFound, NewNotFoundError("peer").HTTPStatus)
	assert.Equal(t, http.StatusTooManyRequests, NewRateLimitError().HTTPStatus)
}

func TestGetAppErrorWalksChain(t *testing.T) {
	inner := NewPeerStateError("offline")
	wrapped := fmt.Errorf("connect: %w", inner)

	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodePeerState, got.Code)

	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
}
