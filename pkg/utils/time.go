package utils

import "time"

// Now returns the current time. A variable so tests can pin the clock.
var Now = time.Now

// IsExpired checks if a timestamp plus TTL lies in the past.
func IsExpired(timestamp time.Time, ttl time.Duration) bool {
	return Now().Sub(timestamp) > ttl
}

// FormatTimestamp formats a timestamp in RFC 3339.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

// ParseTimestamp parses an RFC 3339 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
