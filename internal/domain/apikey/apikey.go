// Package apikey implements opaque API key issuance: raw tokens with a
// fixed brand prefix, storage keyed by SHA-256, and epoch-based expiry.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// Prefix brands raw keys on the wire.
	Prefix = "sk_"
	// rawBytes is the CSPRNG entropy per key.
	rawBytes = 32
	// minBodyLen is the unpadded base64url length of rawBytes.
	minBodyLen = 43
	// DefaultTTLDays applies when issuance does not specify a lifetime.
	DefaultTTLDays = 365
)

// Key is the stored metadata for one issued API key. The raw token is never
// stored; lookups use SHA-256 hash equality.
type Key struct {
	// ID is the uuid assigned at issuance.
	ID string `json:"id"`
	// UserID is the owning user.
	UserID string `json:"user_id"`
	// Name is a human-readable label.
	Name string `json:"name"`
	// CreatedAt is the issuance time (UTC).
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is the expiry instant in epoch seconds.
	ExpiresAt int64 `json:"expires_at"`
	// LastUsed is the last successful validation in epoch seconds, 0 for
	// never used.
	LastUsed int64 `json:"last_used"`
}

// IsExpired reports whether the key is expired at now. Expiry is inclusive:
// a key expires the moment now reaches ExpiresAt, so a zero TTL produces a
// key that is already expired.
func (k *Key) IsExpired(now time.Time) bool {
	return now.Unix() >= k.ExpiresAt
}

// NewRawKey generates a fresh raw token: Prefix plus the unpadded base64url
// encoding of 32 random bytes.
func NewRawKey() (string, error) {
	buf := make([]byte, rawBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key material: %w", err)
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashKey returns the SHA-256 hex digest of the raw key, used as the
// storage key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// WellFormed checks prefix, length, and charset of a raw key without
// consulting storage. It accepts any key at least as long as our own
// issuance; the prefix is a brand choice, not a security property.
func WellFormed(raw string) bool {
	body, ok := strings.CutPrefix(raw, Prefix)
	if !ok {
		return false
	}
	if len(body) < minBodyLen {
		return false
	}
	for _, c := range body {
		if !isBase64URLChar(c) {
			return false
		}
	}
	return true
}

func isBase64URLChar(c rune) bool {
	switch {
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_':
		return true
	default:
		return false
	}
}
