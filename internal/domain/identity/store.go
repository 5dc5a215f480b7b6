package identity

import "context"

// Store persists user records and the channel index. Implementations must
// keep the username and channel indexes consistent with the records under
// concurrent access, and must return copies rather than internal pointers.
//
// Errors use the fault kinds: NotFound for missing users, AlreadyExists for
// duplicate usernames or ids.
type Store interface {
	// Create inserts a new user. The caller assigns the ID.
	Create(ctx context.Context, user *User) error

	// Get retrieves a user by id.
	Get(ctx context.Context, id string) (*User, error)

	// GetByUsername retrieves a user by unique username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByChannel retrieves the user owning the "<channel>:<external-id>"
	// mapping.
	GetByChannel(ctx context.Context, channel, externalID string) (*User, error)

	// Update replaces the stored record with the same ID.
	Update(ctx context.Context, user *User) error

	// LinkChannel maps a channel external id to the user. The mapping key
	// is exclusive: when another user held it, that user loses it and the
	// previous owner's id is returned so the caller can audit the re-link.
	LinkChannel(ctx context.Context, userID, channel, externalID string) (previousOwner string, err error)

	// UnlinkChannel removes the mapping. Removing an absent mapping is a
	// no-op.
	UnlinkChannel(ctx context.Context, channel, externalID string) error

	// Delete removes the user and all of its channel mappings.
	Delete(ctx context.Context, id string) error

	// List returns all users in creation order.
	List(ctx context.Context) ([]*User, error)

	// CountByRole returns how many users reference the role name. Used to
	// guard role deletion.
	CountByRole(ctx context.Context, roleName string) (int, error)
}
