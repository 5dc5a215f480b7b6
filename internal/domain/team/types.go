// Package team models teams, memberships, the fixed team-role capability
// matrix, and single-use invitations.
package team

import (
	"crypto/rand"
	"fmt"
	"time"
)

// TeamRole is one of the four fixed membership roles.
type TeamRole string

const (
	RoleOwner  TeamRole = "owner"
	RoleAdmin  TeamRole = "admin"
	RoleMember TeamRole = "member"
	RoleViewer TeamRole = "viewer"
)

// IsValid returns true if the role is one of the four fixed roles.
func (r TeamRole) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	default:
		return false
	}
}

// Capability names one team-scoped action.
type Capability string

const (
	// CapManageTeam covers renaming the team and editing settings.
	CapManageTeam Capability = "manage_team"
	// CapInviteMembers covers inviting and removing members.
	CapInviteMembers Capability = "invite_members"
	// CapManageSkills covers adding and removing shared skills.
	CapManageSkills Capability = "manage_skills"
	// CapViewAudit covers reading the team's audit activity.
	CapViewAudit Capability = "view_audit"
	// CapShareMemory covers contributing to shared team memory.
	CapShareMemory Capability = "share_memory"
	// CapDeleteTeam covers soft-deleting the team.
	CapDeleteTeam Capability = "delete_team"
)

// capabilityMatrix fixes what each team role may do.
var capabilityMatrix = map[TeamRole]map[Capability]bool{
	RoleOwner: {
		CapManageTeam:    true,
		CapInviteMembers: true,
		CapManageSkills:  true,
		CapViewAudit:     true,
		CapShareMemory:   true,
		CapDeleteTeam:    true,
	},
	RoleAdmin: {
		CapManageTeam:    true,
		CapInviteMembers: true,
		CapManageSkills:  true,
		CapViewAudit:     true,
		CapShareMemory:   true,
	},
	RoleMember: {
		CapShareMemory: true,
	},
	RoleViewer: {
		CapViewAudit: true,
	},
}

// Allows reports whether the team role grants the capability.
func (r TeamRole) Allows(c Capability) bool {
	return capabilityMatrix[r][c]
}

// DefaultMaxMembers caps team size when settings do not say otherwise.
const DefaultMaxMembers = 10

// Member records one user's membership in a team.
type Member struct {
	// Role is the member's team role.
	Role TeamRole `json:"role"`
	// JoinedAt is when the member was added (UTC).
	JoinedAt time.Time `json:"joined_at"`
	// InvitedBy is the user id of whoever added the member.
	InvitedBy string `json:"invited_by"`
}

// Settings holds per-team collaboration toggles.
type Settings struct {
	// SharedMemory enables the shared team memory pool.
	SharedMemory bool `json:"shared_memory"`
	// SkillSharing enables skill distribution inside the team.
	SkillSharing bool `json:"skill_sharing"`
	// AuditVisibility exposes team audit activity to members with
	// the view_audit capability.
	AuditVisibility bool `json:"audit_visibility"`
	// MaxMembers caps team size.
	MaxMembers int `json:"max_members"`
}

// DefaultSettings returns the settings applied to new teams.
func DefaultSettings() Settings {
	return Settings{
		SharedMemory:    true,
		SkillSharing:    true,
		AuditVisibility: true,
		MaxMembers:      DefaultMaxMembers,
	}
}

// Team is one collaboration group. The owner is always present in Members
// with RoleOwner, and exactly one member holds RoleOwner at any time.
type Team struct {
	// ID is the uuid assigned at creation.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Description is a human-readable summary.
	Description string `json:"description"`
	// OwnerID is the owning user id.
	OwnerID string `json:"owner_id"`
	// CreatedAt is the creation time (UTC).
	CreatedAt time.Time `json:"created_at"`
	// Members maps user id to membership record.
	Members map[string]Member `json:"members"`
	// Settings holds the collaboration toggles.
	Settings Settings `json:"settings"`
	// SharedSkills lists skills shared with the whole team.
	SharedSkills []string `json:"shared_skills"`
	// IsActive is false after soft deletion.
	IsActive bool `json:"is_active"`
}

// Clone returns a deep copy so callers never alias internal collections.
func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	c := *t
	if t.Members != nil {
		c.Members = make(map[string]Member, len(t.Members))
		for k, v := range t.Members {
			c.Members[k] = v
		}
	}
	if t.SharedSkills != nil {
		c.SharedSkills = append([]string(nil), t.SharedSkills...)
	}
	return &c
}

// RoleOf returns the team role of a user, or ok=false for non-members.
func (t *Team) RoleOf(userID string) (TeamRole, bool) {
	m, ok := t.Members[userID]
	if !ok {
		return "", false
	}
	return m.Role, true
}

// Invitation is a single-use membership offer.
type Invitation struct {
	// Code is the 8-char uppercase alphanumeric invite code.
	Code string `json:"code"`
	// TeamID is the target team.
	TeamID string `json:"team_id"`
	// InvitedBy is the inviting user id.
	InvitedBy string `json:"invited_by"`
	// Role is the team role granted on acceptance.
	Role TeamRole `json:"role"`
	// CreatedAt is the creation time (UTC).
	CreatedAt time.Time `json:"created_at"`
	// Used is set once the invitation has been accepted.
	Used bool `json:"used"`
}

// inviteCodeLen is the fixed invite code length.
const inviteCodeLen = 8

// inviteAlphabet holds the characters invite codes draw from.
const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewInviteCode returns a random 8-char uppercase alphanumeric code.
func NewInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	code := make([]byte, inviteCodeLen)
	for i, b := range buf {
		code[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(code), nil
}
