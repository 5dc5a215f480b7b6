package team

import "context"

// Store persists teams, the user-to-teams index, and invitations.
// Implementations must apply Update atomically with respect to concurrent
// readers and must return copies rather than internal pointers.
//
// Errors use the fault kinds: NotFound for missing teams or codes,
// AlreadyExists for duplicate invite codes.
type Store interface {
	// Create inserts a new team and indexes its members.
	Create(ctx context.Context, t *Team) error

	// Get retrieves a team by id, active or not.
	Get(ctx context.Context, id string) (*Team, error)

	// Update replaces the stored team with the same ID and reconciles the
	// user index against the new member set.
	Update(ctx context.Context, t *Team) error

	// List returns all active teams in creation order.
	List(ctx context.Context) ([]*Team, error)

	// TeamsOf returns the active teams the user belongs to.
	TeamsOf(ctx context.Context, userID string) ([]*Team, error)

	// PutInvitation stores a pending invitation under its code.
	PutInvitation(ctx context.Context, inv *Invitation) error

	// GetInvitation retrieves an invitation by code.
	GetInvitation(ctx context.Context, code string) (*Invitation, error)

	// UpdateInvitation replaces the stored invitation with the same code.
	UpdateInvitation(ctx context.Context, inv *Invitation) error
}
