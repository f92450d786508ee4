package jwt

import (
	"crypto/sha256"
	"encoding/hex"
)

// TokenHash returns the hex encoded SHA-256 digest of a raw token. It is
// stored next to the token id so a revoked token is matched even when its
// jti is reused.
func TokenHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
