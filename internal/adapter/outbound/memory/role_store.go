package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/rbac"
)

// MemoryRoleStore implements rbac.Store with an in-memory map. The five
// system roles are preloaded at construction and can be neither replaced
// nor deleted. Thread-safe for concurrent access via sync.RWMutex.
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]rbac.Role
}

// NewRoleStore creates a role store preloaded with the system roles.
func NewRoleStore() *MemoryRoleStore {
	s := &MemoryRoleStore{roles: make(map[string]rbac.Role)}
	for _, role := range rbac.SystemRoles() {
		s.roles[role.Name] = role
	}
	return s
}

// Create inserts a custom role. Names are unique across system and custom
// roles.
func (s *MemoryRoleStore) Create(ctx context.Context, role rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[role.Name]; ok {
		return fault.Newf(fault.AlreadyExists, "role %s already exists", role.Name)
	}
	s.roles[role.Name] = role
	return nil
}

// Get returns the role by name.
func (s *MemoryRoleStore) Get(ctx context.Context, name string) (rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[name]
	if !ok {
		return rbac.Role{}, fault.Newf(fault.NotFound, "role %s not found", name)
	}
	return role, nil
}

// Delete removes a custom role. System roles are undeletable.
func (s *MemoryRoleStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[name]
	if !ok {
		return fault.Newf(fault.NotFound, "role %s not found", name)
	}
	if role.IsSystem {
		return fault.Newf(fault.PermissionDenied, "role %s is a system role", name)
	}
	delete(s.roles, name)
	return nil
}

// List returns all roles, system roles first, each group sorted by name.
func (s *MemoryRoleStore) List(ctx context.Context) ([]rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	system := make([]rbac.Role, 0, len(s.roles))
	custom := make([]rbac.Role, 0, len(s.roles))
	for _, role := range s.roles {
		if role.IsSystem {
			system = append(system, role)
		} else {
			custom = append(custom, role)
		}
	}
	sort.Slice(system, func(i, j int) bool { return system[i].Name < system[j].Name })
	sort.Slice(custom, func(i, j int) bool { return custom[i].Name < custom[j].Name })
	return append(system, custom...), nil
}

// Compile-time interface verification.
var _ rbac.Store = (*MemoryRoleStore)(nil)
