package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// DefaultTokenBytes gives single-use tokens 256 bits of entropy.
const DefaultTokenBytes = 32

// RandomToken returns a URL-safe random token, DefaultTokenBytes long
// unless byteLength says otherwise.
func RandomToken(byteLength ...int) (string, error) {
	n := DefaultTokenBytes
	if len(byteLength) > 0 && byteLength[0] > 0 {
		n = byteLength[0]
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken is the storage key of a session token. Only the hash is
// persisted, so a leaked sessions table cannot be replayed.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
