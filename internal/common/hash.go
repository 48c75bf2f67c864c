package common

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex digests input as lowercase hex. Refresh tokens and idempotency
// keys are stored hashed with this so the raw value never touches disk.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
