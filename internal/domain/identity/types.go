// Package identity contains the user model and password hashing for the
// identity store.
package identity

import "time"

// User is one platform account. PasswordHash and Salt are never logged and
// never returned from listing operations.
type User struct {
	// ID is the uuid assigned at creation.
	ID string `json:"id"`
	// Username is globally unique.
	Username string `json:"username"`
	// Email is the contact address.
	Email string `json:"email"`
	// RoleName names the assigned role. Must exist in the role registry.
	RoleName string `json:"role_name"`
	// PasswordHash is the hex-encoded derived key, or a PHC string for
	// imported argon2id records.
	PasswordHash string `json:"password_hash"`
	// Salt is the hex-encoded per-user salt (empty for PHC records, which
	// embed their salt).
	Salt string `json:"salt"`
	// HashScheme tags the hashing parameters used; see DetectScheme.
	HashScheme string `json:"hash_scheme"`
	// IsActive gates authentication and authorization.
	IsActive bool `json:"is_active"`
	// CreatedAt is the creation time (UTC).
	CreatedAt time.Time `json:"created_at"`
	// LastLoginAt is zero until the first successful authentication.
	LastLoginAt time.Time `json:"last_login_at"`
	// Channels maps channel name to the user's external id on that channel.
	Channels map[string]string `json:"channels"`
	// Metadata carries free-form caller attributes.
	Metadata map[string]string `json:"metadata"`
}

// ChannelKey builds the channel index key "<channel>:<external-id>".
func ChannelKey(channel, externalID string) string {
	return channel + ":" + externalID
}

// Clone returns a deep copy so callers never alias internal maps.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Channels != nil {
		c.Channels = make(map[string]string, len(u.Channels))
		for k, v := range u.Channels {
			c.Channels[k] = v
		}
	}
	if u.Metadata != nil {
		c.Metadata = make(map[string]string, len(u.Metadata))
		for k, v := range u.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Redacted returns a copy with credential material cleared, safe to hand
// to listing and lookup callers.
func (u *User) Redacted() *User {
	c := u.Clone()
	if c == nil {
		return nil
	}
	c.PasswordHash = ""
	c.Salt = ""
	return c
}
