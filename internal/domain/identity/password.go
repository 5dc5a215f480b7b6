package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/scrypt"
)

// Hash schemes recorded on user records. Scrypt is the scheme for all new
// records; argon2id PHC strings are accepted for records imported from
// deployments that used it.
const (
	SchemeScrypt   = "scrypt"
	SchemeArgon2id = "argon2id"
)

// scrypt parameters. Versioned through the user's HashScheme tag; changing
// any of them requires a new scheme label so old records keep verifying.
const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	saltLen      = 32
)

// dummySalt feeds the timing-equalization derivation in DummyVerify.
var dummySalt = make([]byte, saltLen)

// HashPassword derives a scrypt key with a fresh CSPRNG salt. Both return
// values are hex-encoded.
func HashPassword(password string) (hash, salt string, err error) {
	rawSalt := make([]byte, saltLen)
	if _, err := rand.Read(rawSalt); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	dk, err := scrypt.Key([]byte(password), rawSalt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", "", fmt.Errorf("derive key: %w", err)
	}
	return hex.EncodeToString(dk), hex.EncodeToString(rawSalt), nil
}

// VerifyPassword checks a candidate password against the user's stored
// credential, dispatching on the record's scheme. The comparison is
// constant-time; any malformed record fails closed.
func VerifyPassword(u *User, password string) bool {
	switch DetectScheme(u) {
	case SchemeArgon2id:
		match, err := safeArgon2idCompare(password, u.PasswordHash)
		return err == nil && match

	case SchemeScrypt:
		rawSalt, err := hex.DecodeString(u.Salt)
		if err != nil || len(rawSalt) < saltLen {
			return false
		}
		dk, err := scrypt.Key([]byte(password), rawSalt, scryptN, scryptR, scryptP, scryptKeyLen)
		if err != nil {
			return false
		}
		computed := hex.EncodeToString(dk)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(u.PasswordHash)) == 1

	default:
		return false
	}
}

// DetectScheme resolves the hashing scheme for a user record. Untagged
// records carrying a PHC argon2id hash are recognized so imports verify
// without migration; everything else is treated as scrypt.
func DetectScheme(u *User) string {
	if u.HashScheme != "" {
		return u.HashScheme
	}
	if strings.HasPrefix(u.PasswordHash, "$argon2id$") {
		return SchemeArgon2id
	}
	return SchemeScrypt
}

// DummyVerify burns one scrypt derivation so unknown-user and inactive-user
// paths take the same time as a wrong-password verification.
func DummyVerify(password string) {
	_, _ = scrypt.Key([]byte(password), dummySalt, scryptN, scryptR, scryptP, scryptKeyLen)
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic
// recovery. The underlying argon2 library panics on malformed PHC strings
// with invalid parameters (e.g. t=0 rounds); those become errors here so
// VerifyPassword never panics.
func safeArgon2idCompare(password, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(password, storedHash)
}
