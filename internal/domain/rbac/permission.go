// Package rbac defines the closed permission catalog and role model used
// for every authorization decision in the security core.
package rbac

import "math/bits"

// Category groups permissions by the surface they guard.
type Category string

const (
	CategoryChat   Category = "chat"
	CategoryTools  Category = "tools"
	CategoryAdmin  Category = "admin"
	CategoryData   Category = "data"
	CategorySystem Category = "system"
)

// Permission identifies one action in the closed catalog. The catalog is
// fixed at build time; roles store permissions as a bitset over this enum.
type Permission uint8

const (
	PermChatSend Permission = iota
	PermChatHistory
	PermToolsExecute
	PermToolsFileRead
	PermToolsFileWrite
	PermToolsNetwork
	PermToolsShell
	PermAdminUsers
	PermAdminRoles
	PermAdminTeams
	PermAdminSkills
	PermAdminAudit
	PermAdminSystem
	PermDataOwn
	PermDataAll
	PermSystemMonitor

	permCount // catalog size sentinel, keep last
)

// permissionInfo is the catalog row for one permission.
type permissionInfo struct {
	name        string
	description string
	category    Category
}

var catalog = [permCount]permissionInfo{
	PermChatSend:       {"chat.send", "Send chat messages", CategoryChat},
	PermChatHistory:    {"chat.history", "View chat history", CategoryChat},
	PermToolsExecute:   {"tools.execute", "Execute tools", CategoryTools},
	PermToolsFileRead:  {"tools.file_read", "Read files through tools", CategoryTools},
	PermToolsFileWrite: {"tools.file_write", "Write files through tools", CategoryTools},
	PermToolsNetwork:   {"tools.network", "Make network requests through tools", CategoryTools},
	PermToolsShell:     {"tools.shell", "Run shell commands", CategoryTools},
	PermAdminUsers:     {"admin.users", "Manage users", CategoryAdmin},
	PermAdminRoles:     {"admin.roles", "Manage roles", CategoryAdmin},
	PermAdminTeams:     {"admin.teams", "Manage teams", CategoryAdmin},
	PermAdminSkills:    {"admin.skills", "Manage and approve skills", CategoryAdmin},
	PermAdminAudit:     {"admin.audit", "View the audit ledger", CategoryAdmin},
	PermAdminSystem:    {"admin.system", "Administer platform settings", CategoryAdmin},
	PermDataOwn:        {"data.own", "Access own data", CategoryData},
	PermDataAll:        {"data.all", "Access all user data", CategoryData},
	PermSystemMonitor:  {"system.monitor", "View system status", CategorySystem},
}

// byName indexes the catalog by dotted permission name.
var byName = func() map[string]Permission {
	m := make(map[string]Permission, permCount)
	for p := Permission(0); p < permCount; p++ {
		m[catalog[p].name] = p
	}
	return m
}()

// Valid reports whether p is a catalog member.
func (p Permission) Valid() bool { return p < permCount }

// Name returns the dotted permission name (e.g. "tools.shell").
func (p Permission) Name() string {
	if !p.Valid() {
		return ""
	}
	return catalog[p].name
}

// String returns the dotted permission name.
func (p Permission) String() string { return p.Name() }

// Description returns the human-readable catalog description.
func (p Permission) Description() string {
	if !p.Valid() {
		return ""
	}
	return catalog[p].description
}

// Category returns the permission's category.
func (p Permission) Category() Category {
	if !p.Valid() {
		return ""
	}
	return catalog[p].category
}

// ParsePermission resolves a dotted name against the catalog.
func ParsePermission(name string) (Permission, bool) {
	p, ok := byName[name]
	return p, ok
}

// AllPermissions returns the catalog in declaration order.
func AllPermissions() []Permission {
	out := make([]Permission, 0, permCount)
	for p := Permission(0); p < permCount; p++ {
		out = append(out, p)
	}
	return out
}

// PermissionSet is a bitset over the permission catalog. The zero value is
// the empty set; sets are values and safe to copy.
type PermissionSet uint32

// NewPermissionSet builds a set from the given permissions, ignoring any
// value outside the catalog.
func NewPermissionSet(perms ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s = s.With(p)
	}
	return s
}

// AllPermissionSet returns the set containing the entire catalog.
func AllPermissionSet() PermissionSet {
	return PermissionSet(1)<<permCount - 1
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	if !p.Valid() {
		return false
	}
	return s&(1<<p) != 0
}

// With returns the set including p.
func (s PermissionSet) With(p Permission) PermissionSet {
	if !p.Valid() {
		return s
	}
	return s | 1<<p
}

// Without returns the set excluding p.
func (s PermissionSet) Without(p Permission) PermissionSet {
	if !p.Valid() {
		return s
	}
	return s &^ (1 << p)
}

// Len returns the number of permissions in the set.
func (s PermissionSet) Len() int { return bits.OnesCount32(uint32(s)) }

// Permissions returns the members in catalog order.
func (s PermissionSet) Permissions() []Permission {
	out := make([]Permission, 0, s.Len())
	for p := Permission(0); p < permCount; p++ {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Names returns the dotted names of the members in catalog order.
func (s PermissionSet) Names() []string {
	perms := s.Permissions()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.Name()
	}
	return out
}
