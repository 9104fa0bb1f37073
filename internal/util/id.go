package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier like "note_9f2c…". The prefix makes ids
// self-describing in logs and API payloads.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
