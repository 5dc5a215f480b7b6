package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// seedHashPrefix brands seed key hashes so a raw key pasted by mistake is
// rejected instead of silently stored as a "hash".
const seedHashPrefix = "sha256:"

// SeedFile is the bootstrap document applied once on first boot: initial
// users, custom roles, and pre-hashed API keys. Raw keys never appear in
// the file; operators hash them with `warden hash-key` first.
type SeedFile struct {
	// Users are created through the identity service, so passwords are
	// hashed on load and the named roles must exist.
	Users []SeedUser `yaml:"users"`

	// Roles are custom roles created before users, so users may
	// reference them.
	Roles []SeedRole `yaml:"roles"`

	// APIKeys are inserted by hash. The raw key is never present.
	APIKeys []SeedKey `yaml:"api_keys"`
}

// SeedUser is one bootstrap user. Password is the initial plaintext
// password; it is hashed at apply time and should be rotated after first
// login.
type SeedUser struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// SeedRole is one bootstrap custom role. Permission names must come from
// the fixed catalog; unknown names are rejected at apply time, not here,
// so this package stays free of domain imports.
type SeedRole struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// SeedKey is one bootstrap API key record, identified by the SHA-256 hash
// of the raw key ("sha256:<64 hex chars>", the output of `warden hash-key`).
type SeedKey struct {
	// User is the owning user's username (not id; ids are assigned at
	// seed time).
	User string `yaml:"user"`

	// Name is a human-readable label.
	Name string `yaml:"name"`

	// KeyHash is the branded SHA-256 digest of the raw key.
	KeyHash string `yaml:"key_hash"`

	// TTLDays is the key lifetime in days. 0 means the default lifetime.
	TTLDays int `yaml:"ttl_days"`
}

// Digest returns the bare lowercase hex digest, stripped of the "sha256:"
// brand. Only valid after the seed file passed validation.
func (k SeedKey) Digest() string {
	return strings.ToLower(strings.TrimPrefix(k.KeyHash, seedHashPrefix))
}

// LoadSeed reads and validates the bootstrap file at path.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	if err := seed.validate(); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	return &seed, nil
}

// validate checks the seed document shape: every user needs credentials
// and a role, every role needs a name and at least one permission, and
// every key hash must carry the sha256 brand over 64 hex characters.
func (s *SeedFile) validate() error {
	usernames := make(map[string]struct{}, len(s.Users))
	for i, u := range s.Users {
		if u.Username == "" {
			return fmt.Errorf("users[%d]: username is required", i)
		}
		if u.Password == "" {
			return fmt.Errorf("users[%d] (%s): password is required", i, u.Username)
		}
		if u.Role == "" {
			return fmt.Errorf("users[%d] (%s): role is required", i, u.Username)
		}
		if _, dup := usernames[u.Username]; dup {
			return fmt.Errorf("users[%d]: duplicate username: %s", i, u.Username)
		}
		usernames[u.Username] = struct{}{}
	}

	roleNames := make(map[string]struct{}, len(s.Roles))
	for i, r := range s.Roles {
		if r.Name == "" {
			return fmt.Errorf("roles[%d]: name is required", i)
		}
		if len(r.Permissions) == 0 {
			return fmt.Errorf("roles[%d] (%s): at least one permission is required", i, r.Name)
		}
		if _, dup := roleNames[r.Name]; dup {
			return fmt.Errorf("roles[%d]: duplicate role name: %s", i, r.Name)
		}
		roleNames[r.Name] = struct{}{}
	}

	for i, k := range s.APIKeys {
		if k.User == "" {
			return fmt.Errorf("api_keys[%d]: user is required", i)
		}
		if _, known := usernames[k.User]; !known {
			return fmt.Errorf("api_keys[%d]: references unknown user: %s", i, k.User)
		}
		if err := validateKeyHash(k.KeyHash); err != nil {
			return fmt.Errorf("api_keys[%d] (%s): %w", i, k.User, err)
		}
	}
	return nil
}

// validateKeyHash checks the "sha256:<64 hex>" shape.
func validateKeyHash(h string) error {
	digest, ok := strings.CutPrefix(h, seedHashPrefix)
	if !ok {
		return fmt.Errorf("key_hash must start with %q (generate with: warden hash-key)", seedHashPrefix)
	}
	if len(digest) != 64 {
		return fmt.Errorf("key_hash digest must be 64 hex characters, got %d", len(digest))
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return fmt.Errorf("key_hash digest is not valid hex: %w", err)
	}
	return nil
}
