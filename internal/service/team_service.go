package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-platform/warden-core/internal/domain/audit"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/team"
)

// TeamService manages teams, memberships, and invitations. Every mutating
// operation names the acting user and is guarded by the fixed capability
// matrix; read-modify-write sequences are serialized by one service mutex so
// membership caps and ownership transfers stay atomic.
type TeamService struct {
	teams   team.Store
	logger  *slog.Logger
	rec     AuditRecorder
	persist PersistHook
	now     func() time.Time

	mu sync.Mutex // serializes mutations
}

// TeamOption configures TeamService.
type TeamOption func(*TeamService)

// WithTeamClock overrides the time source. Used in tests.
func WithTeamClock(now func() time.Time) TeamOption {
	return func(s *TeamService) { s.now = now }
}

// WithTeamAudit attaches a ledger for team mutation records.
func WithTeamAudit(rec AuditRecorder) TeamOption {
	return func(s *TeamService) { s.rec = rec }
}

// WithTeamPersist attaches a hook run after successful mutations.
func WithTeamPersist(hook PersistHook) TeamOption {
	return func(s *TeamService) { s.persist = hook }
}

// NewTeamService creates a TeamService over the given store.
func NewTeamService(teams team.Store, logger *slog.Logger, opts ...TeamOption) *TeamService {
	s := &TeamService{
		teams:  teams,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTeamInput carries the fields for a new team.
type CreateTeamInput struct {
	Name        string `json:"name"`
	OwnerID     string `json:"owner_id"`
	Description string `json:"description"`
}

// Create adds a team with the owner auto-added as its first member.
func (s *TeamService) Create(ctx context.Context, input CreateTeamInput) (*team.Team, error) {
	if input.Name == "" {
		return nil, fault.New(fault.InvalidArgument, "team name is required")
	}
	if input.OwnerID == "" {
		return nil, fault.New(fault.InvalidArgument, "owner id is required")
	}

	now := s.now().UTC()
	t := &team.Team{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Description: input.Description,
		OwnerID:     input.OwnerID,
		CreatedAt:   now,
		Members: map[string]team.Member{
			input.OwnerID: {Role: team.RoleOwner, JoinedAt: now, InvitedBy: input.OwnerID},
		},
		Settings:     team.DefaultSettings(),
		SharedSkills: []string{},
		IsActive:     true,
	}
	if err := s.teams.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("team created",
		"team_id", t.ID,
		"name", t.Name,
		"owner_id", t.OwnerID,
	)
	s.record(ctx, "team.create", input.OwnerID, "team:"+t.ID, WithDetail(t.Name))
	s.persisted(ctx)
	return t, nil
}

// Get returns a team by id, soft-deleted teams included.
func (s *TeamService) Get(ctx context.Context, teamID string) (*team.Team, error) {
	return s.teams.Get(ctx, teamID)
}

// List returns all active teams in creation order.
func (s *TeamService) List(ctx context.Context) ([]*team.Team, error) {
	return s.teams.List(ctx)
}

// TeamsOf returns the active teams the user belongs to.
func (s *TeamService) TeamsOf(ctx context.Context, userID string) ([]*team.Team, error) {
	return s.teams.TeamsOf(ctx, userID)
}

// AddMember adds a user to the team. The inviter must hold the
// invite_members capability.
func (s *TeamService) AddMember(ctx context.Context, teamID, userID string, role team.TeamRole, inviterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activeTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(t, inviterID, team.CapInviteMembers); err != nil {
		return err
	}
	if err := s.join(t, userID, role, inviterID); err != nil {
		return err
	}
	if err := s.teams.Update(ctx, t); err != nil {
		return err
	}

	s.logger.Info("team member added",
		"team_id", teamID,
		"user_id", userID,
		"role", role,
	)
	s.record(ctx, "team.add_member", inviterID, "team:"+teamID,
		WithDetail("added "+userID+" as "+string(role)))
	s.persisted(ctx)
	return nil
}

// RemoveMember removes a user from the team. The actor must hold the
// invite_members capability; the owner cannot be removed.
func (s *TeamService) RemoveMember(ctx context.Context, teamID, userID, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activeTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(t, actorID, team.CapInviteMembers); err != nil {
		return err
	}
	if _, ok := t.Members[userID]; !ok {
		return fault.Newf(fault.NotFound, "user %s is not a member", userID)
	}
	if userID == t.OwnerID {
		return fault.New(fault.PermissionDenied, "cannot remove the owner; transfer ownership first")
	}

	delete(t.Members, userID)
	if err := s.teams.Update(ctx, t); err != nil {
		return err
	}

	s.logger.Info("team member removed",
		"team_id", teamID,
		"user_id", userID,
	)
	s.record(ctx, "team.remove_member", actorID, "team:"+teamID, WithDetail("removed "+userID))
	s.persisted(ctx)
	return nil
}

// UpdateMemberRole changes a member's team role. The actor must hold the
// manage_team capability. The owner cannot be demoted directly, and the
// owner role is only reachable through TransferOwnership.
func (s *TeamService) UpdateMemberRole(ctx context.Context, teamID, userID string, role team.TeamRole, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activeTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(t, actorID, team.CapManageTeam); err != nil {
		return err
	}
	if !role.IsValid() {
		return fault.Newf(fault.InvalidArgument, "unknown team role %q", role)
	}
	if role == team.RoleOwner {
		return fault.New(fault.InvalidArgument, "ownership changes hands via transfer_ownership")
	}
	member, ok := t.Members[userID]
	if !ok {
		return fault.Newf(fault.NotFound, "user %s is not a member", userID)
	}
	if userID == t.OwnerID {
		return fault.New(fault.PermissionDenied, "cannot demote the owner; transfer ownership first")
	}

	previous := member.Role
	member.Role = role
	t.Members[userID] = member
	if err := s.teams.Update(ctx, t); err != nil {
		return err
	}

	s.logger.Info("team member role updated",
		"team_id", teamID,
		"user_id", userID,
		"role", role,
	)
	s.record(ctx, "team.update_role", actorID, "team:"+teamID,
		WithDetail(userID+": "+string(previous)+" -> "+string(role)))
	s.persisted(ctx)
	return nil
}

// TransferOwnership makes an existing member the owner: the old owner
// becomes an admin, the new owner takes the owner role, and the team's
// owner id moves — all in one store update.
func (s *TeamService) TransferOwnership(ctx context.Context, teamID, newOwnerID, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activeTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if actorID != t.OwnerID {
		return fault.New(fault.PermissionDenied, "only the owner may transfer ownership")
	}
	if newOwnerID == t.OwnerID {
		return fault.New(fault.InvalidArgument, "user already owns the team")
	}
	newOwner, ok := t.Members[newOwnerID]
	if !ok {
		return fault.Newf(fault.NotFound, "user %s is not a member", newOwnerID)
	}

	oldOwner := t.Members[t.OwnerID]
	oldOwner.Role = team.RoleAdmin
	t.Members[t.OwnerID] = oldOwner

	newOwner.Role = team.RoleOwner
	t.Members[newOwnerID] = newOwner

	previousOwnerID := t.OwnerID
	t.OwnerID = newOwnerID
	if err := s.teams.Update(ctx, t); err != nil {
		return err
	}

	s.logger.Info("team ownership transferred",
		"team_id", teamID,
		"from", previousOwnerID,
		"to", newOwnerID,
	)
	s.record(ctx, "team.transfer_ownership", actorID, "team:"+teamID,
		WithDetail(previousOwnerID+" -> "+newOwnerID))
	s.persisted(ctx)
	return nil
}

// Invite creates a single-use invitation. The inviter must hold the
// invite_members capability.
func (s *TeamService) Invite(ctx context.Context, teamID, inviterID string, role team.TeamRole) (*team.Invitation, error) {
	t, err := s.activeTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCapability(t, inviterID, team.CapInviteMembers); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, fault.Newf(fault.InvalidArgument, "unknown team role %q", role)
	}
	if role == team.RoleOwner {
		return nil, fault.New(fault.InvalidArgument, "cannot invite a second owner")
	}

	code, err := team.NewInviteCode()
	if err != nil {
		return nil, err
	}
	inv := &team.Invitation{
		Code:      code,
		TeamID:    teamID,
		InvitedBy: inviterID,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	if err := s.teams.PutInvitation(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.Info("team invitation created",
		"team_id", teamID,
		"invited_by", inviterID,
		"role", role,
	)
	s.record(ctx, "team.invite", inviterID, "team:"+teamID, WithDetail("role "+string(role)))
	s.persisted(ctx)
	return inv, nil
}

// AcceptInvitation joins the accepting user to the invitation's team. The
// code is consumed only when the join succeeds: a full team or a duplicate
// member leaves the invitation usable.
func (s *TeamService) AcceptInvitation(ctx context.Context, code, userID string) (*team.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, err := s.teams.GetInvitation(ctx, code)
	if err != nil {
		if fault.IsKind(err, fault.NotFound) {
			return nil, fault.New(fault.InvalidArgument, "invalid invitation code")
		}
		return nil, err
	}
	if inv.Used {
		return nil, fault.New(fault.Expired, "invitation already used")
	}

	t, err := s.activeTeam(ctx, inv.TeamID)
	if err != nil {
		return nil, err
	}
	if err := s.join(t, userID, inv.Role, inv.InvitedBy); err != nil {
		return nil, err
	}
	if err := s.teams.Update(ctx, t); err != nil {
		return nil, err
	}

	inv.Used = true
	if err := s.teams.UpdateInvitation(ctx, inv); err != nil {
		// The member is in; an unconsumed code is the lesser damage.
		s.logger.Error("failed to consume invitation",
			"team_id", inv.TeamID,
			"error", err,
		)
	}

	s.logger.Info("team invitation accepted",
		"team_id", t.ID,
		"user_id", userID,
		"role", inv.Role,
	)
	s.record(ctx, "team.accept_invite", userID, "team:"+t.ID, WithDetail("joined as "+string(inv.Role)))
	s.persisted(ctx)
	return t, nil
}

// Delete soft-deletes the team: the record remains readable by id, but the
// team leaves every listing and every member's team list. The actor must
// hold the delete_team capability.
func (s *TeamService) Delete(ctx context.Context, teamID, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activeTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(t, actorID, team.CapDeleteTeam); err != nil {
		return err
	}

	t.IsActive = false
	if err := s.teams.Update(ctx, t); err != nil {
		return err
	}

	s.logger.Info("team deleted",
		"team_id", teamID,
		"name", t.Name,
	)
	s.record(ctx, "team.delete", actorID, "team:"+teamID, WithDetail(t.Name))
	s.persisted(ctx)
	return nil
}

// ShareSkill adds a skill to the team's shared list. The actor must hold
// the manage_skills capability.
func (s *TeamService) ShareSkill(ctx context.Context, teamID, skill, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if skill == "" {
		return fault.New(fault.InvalidArgument, "skill name is required")
	}
	t, err := s.activeTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(t, actorID, team.CapManageSkills); err != nil {
		return err
	}
	for _, existing := range t.SharedSkills {
		if existing == skill {
			return fault.Newf(fault.AlreadyExists, "skill %s is already shared", skill)
		}
	}

	t.SharedSkills = append(t.SharedSkills, skill)
	if err := s.teams.Update(ctx, t); err != nil {
		return err
	}

	s.record(ctx, "team.share_skill", actorID, "team:"+teamID, WithDetail(skill))
	s.persisted(ctx)
	return nil
}

// UnshareSkill removes a skill from the team's shared list. The actor must
// hold the manage_skills capability.
func (s *TeamService) UnshareSkill(ctx context.Context, teamID, skill, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activeTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(t, actorID, team.CapManageSkills); err != nil {
		return err
	}

	found := false
	kept := t.SharedSkills[:0]
	for _, existing := range t.SharedSkills {
		if existing == skill {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		return fault.Newf(fault.NotFound, "skill %s is not shared", skill)
	}

	t.SharedSkills = kept
	if err := s.teams.Update(ctx, t); err != nil {
		return err
	}

	s.record(ctx, "team.unshare_skill", actorID, "team:"+teamID, WithDetail(skill))
	s.persisted(ctx)
	return nil
}

// UpdateSettings replaces the team's collaboration settings. The actor must
// hold the manage_team capability; the member cap cannot drop below the
// current member count.
func (s *TeamService) UpdateSettings(ctx context.Context, teamID string, settings team.Settings, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.activeTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.requireCapability(t, actorID, team.CapManageTeam); err != nil {
		return err
	}
	if settings.MaxMembers <= 0 {
		return fault.New(fault.InvalidArgument, "max members must be positive")
	}
	if settings.MaxMembers < len(t.Members) {
		return fault.Newf(fault.InvalidArgument, "max members %d is below the current member count %d",
			settings.MaxMembers, len(t.Members))
	}

	t.Settings = settings
	if err := s.teams.Update(ctx, t); err != nil {
		return err
	}

	s.record(ctx, "team.update_settings", actorID, "team:"+teamID)
	s.persisted(ctx)
	return nil
}

// activeTeam loads a team and treats soft-deleted ones as absent.
func (s *TeamService) activeTeam(ctx context.Context, teamID string) (*team.Team, error) {
	t, err := s.teams.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, fault.Newf(fault.NotFound, "team %s not found", teamID)
	}
	return t, nil
}

// requireCapability checks the actor's team role against the capability
// matrix. Non-members are denied.
func (s *TeamService) requireCapability(t *team.Team, actorID string, c team.Capability) error {
	role, ok := t.RoleOf(actorID)
	if !ok {
		return fault.Newf(fault.PermissionDenied, "user %s is not a member", actorID)
	}
	if !role.Allows(c) {
		return fault.Newf(fault.PermissionDenied, "role %s lacks %s", role, c)
	}
	return nil
}

// join applies the structural membership rules and mutates the team in
// place. Callers hold s.mu and write the team back to the store.
func (s *TeamService) join(t *team.Team, userID string, role team.TeamRole, inviterID string) error {
	if userID == "" {
		return fault.New(fault.InvalidArgument, "user id is required")
	}
	if !role.IsValid() {
		return fault.Newf(fault.InvalidArgument, "unknown team role %q", role)
	}
	if role == team.RoleOwner {
		return fault.New(fault.InvalidArgument, "a team has exactly one owner")
	}
	if _, ok := t.Members[userID]; ok {
		return fault.Newf(fault.AlreadyExists, "user %s is already a member", userID)
	}
	if len(t.Members) >= t.Settings.MaxMembers {
		return fault.Newf(fault.LimitExceeded, "team is at its member cap of %d", t.Settings.MaxMembers)
	}

	t.Members[userID] = team.Member{
		Role:      role,
		JoinedAt:  s.now().UTC(),
		InvitedBy: inviterID,
	}
	return nil
}

func (s *TeamService) record(ctx context.Context, action, actorID, resource string, opts ...EntryOption) {
	if s.rec == nil {
		return
	}
	if _, err := s.rec.Append(ctx, action, audit.ActorUser, resource, audit.DecisionAllow, opts...); err != nil {
		s.logger.Error("failed to audit team operation",
			"action", action,
			"actor_id", actorID,
			"error", err,
		)
	}
}

func (s *TeamService) persisted(ctx context.Context) {
	if s.persist != nil {
		s.persist(ctx)
	}
}
