package rbac

import "context"

// Store persists role definitions. Implementations preload the system roles
// and must refuse to modify or remove them.
//
// Errors use the fault kinds: NotFound for missing roles, AlreadyExists for
// duplicate names, PermissionDenied for system-role mutation.
type Store interface {
	// Create inserts a custom role.
	Create(ctx context.Context, role Role) error

	// Get retrieves a role by name.
	Get(ctx context.Context, name string) (Role, error)

	// Delete removes a custom role. System roles are undeletable.
	Delete(ctx context.Context, name string) error

	// List returns all roles, system roles first, each group sorted by
	// name.
	List(ctx context.Context) ([]Role, error)
}
