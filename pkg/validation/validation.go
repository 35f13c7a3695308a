package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// PeerIDLength is the fixed length of a Duo peer ID.
	PeerIDLength = 12

	MaxDeviceNameLength = 64
	MaxChatTextLength   = 4096
	MaxSDPLength        = 256 * 1024
)

// ValidatePeerID checks that the ID is exactly 12 ASCII digits.
func ValidatePeerID(id string) error {
	if len(id) != PeerIDLength {
		return fmt.Errorf("peer ID must be exactly %d digits, got %d characters", PeerIDLength, len(id))
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("peer ID must contain only digits")
		}
	}
	return nil
}

// ValidateSDP does a shallow sanity check on a session description before it
// is written to the shared registry.
func ValidateSDP(sdp string) error {
	if sdp == "" {
		return fmt.Errorf("SDP must not be empty")
	}
	if len(sdp) > MaxSDPLength {
		return fmt.Errorf("SDP exceeds %d bytes", MaxSDPLength)
	}
	if !strings.HasPrefix(sdp, "v=") {
		return fmt.Errorf("SDP must start with a version line")
	}
	return nil
}

// ValidateDeviceName checks a human-readable device name.
func ValidateDeviceName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("device name must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxDeviceNameLength {
		return fmt.Errorf("device name must be at most %d characters", MaxDeviceNameLength)
	}
	return nil
}

// ValidateChatText checks an outbound chat message body.
func ValidateChatText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("chat message must not be empty")
	}
	if utf8.RuneCountInString(text) > MaxChatTextLength {
		return fmt.Errorf("chat message must be at most %d characters", MaxChatTextLength)
	}
	return nil
}

// ValidateAccountID checks an account identifier used for identity claims.
func ValidateAccountID(account string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return fmt.Errorf("account ID must not be empty")
	}
	if len(account) > 128 {
		return fmt.Errorf("account ID must be at most 128 characters")
	}
	return nil
}
