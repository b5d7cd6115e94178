package keys

import (
	"strings"

	"github.com/google/uuid"
)

// NewSessionID returns a 128-bit random token rendered as 32 hex chars.
func NewSessionID() string {
	return hexUUID()
}

// NewRequestNonce names a one-shot rendezvous request object.
func NewRequestNonce() string {
	return hexUUID()
}

func hexUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
