package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// PeerIDLength is the fixed length of a generated peer ID.
const PeerIDLength = 12

// RandomPeerID returns a candidate peer ID of 12 random decimal digits.
// Uniqueness is enforced by the registry claim, not here.
func RandomPeerID() (string, error) {
	digits := make([]byte, PeerIDLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}

// TimestampPeerID derives a 12-digit ID from the current time. Used as a
// last-resort fallback when random candidates keep colliding.
func TimestampPeerID() string {
	ms := time.Now().UnixMilli()
	return fmt.Sprintf("%012d", ms%1_000_000_000_000)
}
