// Package state provides file-based persistence for the security core's
// registries.
//
// The state.json file is a point-in-time snapshot of the in-memory stores:
// users, custom roles, API key records, teams, invitations, and the threat
// detector's baselines and blocks. This package provides atomic writes,
// file locking, and backup functionality; assembling and restoring the
// snapshot is the snapshot service's job.
package state

import (
	"time"

	"github.com/warden-platform/warden-core/internal/domain/apikey"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/domain/rbac"
	"github.com/warden-platform/warden-core/internal/domain/team"
	"github.com/warden-platform/warden-core/internal/domain/threat"
)

// StateVersion is the schema version written into new snapshots.
const StateVersion = "1"

// AppState is the top-level structure persisted in state.json. The in-memory
// registries stay authoritative while the process runs; the file exists so
// their contents survive a restart.
//
// The snapshot carries password hashes and API key token hashes, which is
// why the file is written with 0600 permissions and never anything wider.
type AppState struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`

	// Users are the registered users, deactivated ones included.
	Users []identity.User `json:"users"`

	// CustomRoles are the administrator-defined roles. System roles are
	// rebuilt from the catalog at boot and never persisted.
	CustomRoles []RoleEntry `json:"custom_roles"`

	// APIKeys are the key records paired with the token hash each is
	// stored under. Raw keys are shown once at generation and exist
	// nowhere after that, this file included.
	APIKeys []KeyEntry `json:"api_keys"`

	// Teams are all teams, soft-deleted ones included so their history
	// stays resolvable.
	Teams []team.Team `json:"teams"`

	// Invitations are the issued invite codes, consumed ones included.
	Invitations []team.Invitation `json:"invitations"`

	// Threat carries the detector's baselines and active source blocks.
	Threat threat.State `json:"threat"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleEntry is the persisted form of a custom role. Permissions are stored
// by dotted name rather than bitmask so snapshots stay valid if the
// permission catalog is ever reordered.
type RoleEntry struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

// NewRoleEntry converts a role into its persisted form.
func NewRoleEntry(role rbac.Role) RoleEntry {
	return RoleEntry{
		Name:        role.Name,
		Description: role.Description,
		Permissions: role.Permissions.Names(),
	}
}

// Role rebuilds the domain role. An unknown permission name is an error
// rather than a silent drop: a role quietly losing grants on load would be
// worse than refusing to start.
func (e RoleEntry) Role() (rbac.Role, error) {
	perms := make([]rbac.Permission, 0, len(e.Permissions))
	for _, name := range e.Permissions {
		p, ok := rbac.ParsePermission(name)
		if !ok {
			return rbac.Role{}, fault.Newf(fault.InvalidArgument,
				"role %s: unknown permission %q", e.Name, name)
		}
		perms = append(perms, p)
	}
	return rbac.Role{
		Name:        e.Name,
		Description: e.Description,
		Permissions: rbac.NewPermissionSet(perms...),
	}, nil
}

// KeyEntry pairs an API key record with the SHA-256 token hash it is
// stored under in the key registry.
type KeyEntry struct {
	TokenHash string     `json:"token_hash"`
	Key       apikey.Key `json:"key"`
}
