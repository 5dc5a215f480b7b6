package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/team"
)

// MemoryTeamStore implements team.Store with in-memory maps plus a
// user-to-teams index reconciled on every write. Thread-safe for concurrent
// access via sync.RWMutex. Returns deep copies to prevent external mutation
// of stored data.
type MemoryTeamStore struct {
	mu        sync.RWMutex
	teams     map[string]*team.Team
	order     []string                   // team ids in creation order
	userTeams map[string]map[string]bool // user id -> team id set
	invites   map[string]*team.Invitation
}

// NewTeamStore creates a new in-memory team store.
func NewTeamStore() *MemoryTeamStore {
	return &MemoryTeamStore{
		teams:     make(map[string]*team.Team),
		userTeams: make(map[string]map[string]bool),
		invites:   make(map[string]*team.Invitation),
	}
}

// Create inserts a new team and indexes its members.
func (s *MemoryTeamStore) Create(ctx context.Context, t *team.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.teams[t.ID]; ok {
		return fault.Newf(fault.AlreadyExists, "team %s already exists", t.ID)
	}
	stored := t.Clone()
	s.teams[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	if stored.IsActive {
		for userID := range stored.Members {
			s.indexLocked(userID, stored.ID)
		}
	}
	return nil
}

// Get returns a team by id, active or not, as a deep copy.
func (s *MemoryTeamStore) Get(ctx context.Context, id string) (*team.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.teams[id]
	if !ok {
		return nil, fault.Newf(fault.NotFound, "team %s not found", id)
	}
	return t.Clone(), nil
}

// Update replaces the stored team and reconciles the user index against the
// new member set. Inactive teams drop out of every user's team list.
func (s *MemoryTeamStore) Update(ctx context.Context, t *team.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.teams[t.ID]
	if !ok {
		return fault.Newf(fault.NotFound, "team %s not found", t.ID)
	}

	for userID := range current.Members {
		s.unindexLocked(userID, t.ID)
	}
	stored := t.Clone()
	s.teams[stored.ID] = stored
	if stored.IsActive {
		for userID := range stored.Members {
			s.indexLocked(userID, stored.ID)
		}
	}
	return nil
}

// List returns all active teams in creation order as deep copies.
func (s *MemoryTeamStore) List(ctx context.Context) ([]*team.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*team.Team, 0, len(s.order))
	for _, id := range s.order {
		if t := s.teams[id]; t.IsActive {
			result = append(result, t.Clone())
		}
	}
	return result, nil
}

// TeamsOf returns the active teams the user belongs to, in creation order.
func (s *MemoryTeamStore) TeamsOf(ctx context.Context, userID string) ([]*team.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.userTeams[userID]
	result := make([]*team.Team, 0, len(ids))
	for _, id := range s.order {
		if !ids[id] {
			continue
		}
		if t := s.teams[id]; t.IsActive {
			result = append(result, t.Clone())
		}
	}
	return result, nil
}

// PutInvitation stores a pending invitation under its code.
func (s *MemoryTeamStore) PutInvitation(ctx context.Context, inv *team.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invites[inv.Code]; ok {
		return fault.Newf(fault.AlreadyExists, "invite code %s already exists", inv.Code)
	}
	stored := *inv
	s.invites[inv.Code] = &stored
	return nil
}

// GetInvitation returns an invitation by code as a copy.
func (s *MemoryTeamStore) GetInvitation(ctx context.Context, code string) (*team.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invites[code]
	if !ok {
		return nil, fault.Newf(fault.NotFound, "invitation %s not found", code)
	}
	out := *inv
	return &out, nil
}

// UpdateInvitation replaces the stored invitation with the same code.
func (s *MemoryTeamStore) UpdateInvitation(ctx context.Context, inv *team.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invites[inv.Code]; !ok {
		return fault.Newf(fault.NotFound, "invitation %s not found", inv.Code)
	}
	stored := *inv
	s.invites[inv.Code] = &stored
	return nil
}

// Export returns every team (inactive included) in creation order and every
// invitation sorted by code, as copies. Used by the snapshot service; not
// part of team.Store.
func (s *MemoryTeamStore) Export() ([]*team.Team, []*team.Invitation) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	teams := make([]*team.Team, 0, len(s.order))
	for _, id := range s.order {
		teams = append(teams, s.teams[id].Clone())
	}
	invites := make([]*team.Invitation, 0, len(s.invites))
	for _, inv := range s.invites {
		out := *inv
		invites = append(invites, &out)
	}
	sort.Slice(invites, func(i, j int) bool { return invites[i].Code < invites[j].Code })
	return teams, invites
}

func (s *MemoryTeamStore) indexLocked(userID, teamID string) {
	set, ok := s.userTeams[userID]
	if !ok {
		set = make(map[string]bool)
		s.userTeams[userID] = set
	}
	set[teamID] = true
}

func (s *MemoryTeamStore) unindexLocked(userID, teamID string) {
	set, ok := s.userTeams[userID]
	if !ok {
		return
	}
	delete(set, teamID)
	if len(set) == 0 {
		delete(s.userTeams, userID)
	}
}

// Compile-time interface verification.
var _ team.Store = (*MemoryTeamStore)(nil)
