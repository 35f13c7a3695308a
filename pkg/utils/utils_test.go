package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomPeerID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := RandomPeerID()
		require.NoError(t, err)
		require.Len(t, id, PeerIDLength)
		for _, r := range id {
			assert.True(t, r >= '0' && r <= '9', "non-digit in %q", id)
		}
		seen[id] = true
	}
	// 100 random 12-digit IDs colliding would be astronomically unlikely.
	assert.Greater(t, len(seen), 90)
}

func TestTimestampPeerID(t *testing.T) {
	id := TimestampPeerID()
	assert.Len(t, id, PeerIDLength)
	for _, r := range id {
		assert.True(t, r >= '0' && r <= '9')
	}
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello \x00 "))
	assert.Equal(t, "a\nb", SanitizeString("a\nb"))
	assert.Equal(t, "", SanitizeString("\x01\x02"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "long st...", TruncateString("long string here", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}

func TestMaskSensitive(t *testing.T) {
	assert.Equal(t, "secr********", MaskSensitive("secret-token", 4))
	assert.Equal(t, "***", MaskSensitive("abc", 5))
}

func TestIsExpired(t *testing.T) {
	defer func() { Now = time.Now }()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	Now = func() time.Time { return base }

	assert.False(t, IsExpired(base.Add(-5*time.Second), 10*time.Second))
	assert.True(t, IsExpired(base.Add(-15*time.Second), 10*time.Second))
}

func TestTimestampRoundTrip(t *testing.T) {
	orig := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	parsed, err := ParseTimestamp(FormatTimestamp(orig))
	require.NoError(t, err)
	assert.True(t, orig.Equal(parsed))
}
