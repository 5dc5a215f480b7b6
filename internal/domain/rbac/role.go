package rbac

// System role names preloaded into every role registry.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleUser     = "user"
	RoleViewer   = "viewer"
	RoleGuest    = "guest"
)

// Role is a named set of permissions. System roles are immutable and
// undeletable; custom roles may only draw from the fixed catalog.
type Role struct {
	// Name is the unique role name.
	Name string
	// Description is a human-readable summary.
	Description string
	// Permissions is the granted set.
	Permissions PermissionSet
	// IsSystem marks the built-in roles.
	IsSystem bool
}

// Has reports whether the role grants the permission.
func (r Role) Has(p Permission) bool { return r.Permissions.Has(p) }

// SystemRoles returns fresh copies of the five built-in roles.
func SystemRoles() []Role {
	return []Role{
		{
			Name:        RoleAdmin,
			Description: "Full access to all operations",
			Permissions: AllPermissionSet(),
			IsSystem:    true,
		},
		{
			Name:        RoleOperator,
			Description: "Chat, all tools, skill administration, audit view, monitoring",
			Permissions: NewPermissionSet(
				PermChatSend, PermChatHistory,
				PermToolsExecute, PermToolsFileRead, PermToolsFileWrite,
				PermToolsNetwork, PermToolsShell,
				PermAdminSkills, PermAdminAudit,
				PermSystemMonitor,
			),
			IsSystem: true,
		},
		{
			Name:        RoleUser,
			Description: "Chat, safe tools, own data, monitoring",
			Permissions: NewPermissionSet(
				PermChatSend, PermChatHistory,
				PermToolsExecute, PermToolsFileRead, PermToolsNetwork,
				PermDataOwn,
				PermSystemMonitor,
			),
			IsSystem: true,
		},
		{
			Name:        RoleViewer,
			Description: "Chat, history, own data",
			Permissions: NewPermissionSet(PermChatSend, PermChatHistory, PermDataOwn),
			IsSystem:    true,
		},
		{
			Name:        RoleGuest,
			Description: "Send chat messages only",
			Permissions: NewPermissionSet(PermChatSend),
			IsSystem:    true,
		},
	}
}
