package util

import "github.com/google/uuid"

// NewID returns an opaque random identifier suitable for session tokens
// and request ids.
func NewID() string {
	return uuid.NewString()
}
