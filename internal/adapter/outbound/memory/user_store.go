package memory

import (
	"context"
	"sync"

	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/identity"
)

// MemoryUserStore implements identity.Store with in-memory maps.
// Thread-safe for concurrent access via sync.RWMutex. The username and
// channel indexes are maintained here so they can never drift from the
// records. Returns deep copies to prevent external mutation of stored data.
type MemoryUserStore struct {
	mu        sync.RWMutex
	users     map[string]*identity.User // by id
	byName    map[string]string         // username -> id
	byChannel map[string]string         // "<channel>:<external-id>" -> id
	order     []string                  // ids in creation order
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:     make(map[string]*identity.User),
		byName:    make(map[string]string),
		byChannel: make(map[string]string),
	}
}

// Create inserts a new user. Duplicate ids or usernames are rejected.
func (s *MemoryUserStore) Create(ctx context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fault.Newf(fault.AlreadyExists, "user id %s already exists", user.ID)
	}
	if _, ok := s.byName[user.Username]; ok {
		return fault.Newf(fault.AlreadyExists, "username %s already exists", user.Username)
	}

	stored := user.Clone()
	s.users[stored.ID] = stored
	s.byName[stored.Username] = stored.ID
	for channel, externalID := range stored.Channels {
		s.byChannel[identity.ChannelKey(channel, externalID)] = stored.ID
	}
	s.order = append(s.order, stored.ID)
	return nil
}

// Get returns a user by id as a deep copy.
func (s *MemoryUserStore) Get(ctx context.Context, id string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fault.Newf(fault.NotFound, "user %s not found", id)
	}
	return user.Clone(), nil
}

// GetByUsername returns a user by unique username as a deep copy.
func (s *MemoryUserStore) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return nil, fault.Newf(fault.NotFound, "user %s not found", username)
	}
	return s.users[id].Clone(), nil
}

// GetByChannel resolves a channel mapping to its owning user.
func (s *MemoryUserStore) GetByChannel(ctx context.Context, channel, externalID string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byChannel[identity.ChannelKey(channel, externalID)]
	if !ok {
		return nil, fault.Newf(fault.NotFound, "no user linked to %s", identity.ChannelKey(channel, externalID))
	}
	return s.users[id].Clone(), nil
}

// Update replaces the stored record with the same ID. Channel mappings
// change only through LinkChannel and UnlinkChannel; the incoming Channels
// field is ignored in favor of the stored one. A username change re-indexes
// and is rejected when the new name is taken.
func (s *MemoryUserStore) Update(ctx context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return fault.Newf(fault.NotFound, "user %s not found", user.ID)
	}
	if user.Username != current.Username {
		if _, taken := s.byName[user.Username]; taken {
			return fault.Newf(fault.AlreadyExists, "username %s already exists", user.Username)
		}
		delete(s.byName, current.Username)
		s.byName[user.Username] = user.ID
	}

	stored := user.Clone()
	stored.Channels = current.Channels
	s.users[stored.ID] = stored
	return nil
}

// LinkChannel maps a channel external id to the user. When another user
// held the mapping, it moves and the previous owner's id is returned.
func (s *MemoryUserStore) LinkChannel(ctx context.Context, userID, channel, externalID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return "", fault.Newf(fault.NotFound, "user %s not found", userID)
	}

	key := identity.ChannelKey(channel, externalID)
	previousOwner := s.byChannel[key]
	if previousOwner == userID {
		return "", nil
	}

	// Detach the mapping from its previous owner.
	if previousOwner != "" {
		if prev := s.users[previousOwner]; prev != nil && prev.Channels[channel] == externalID {
			delete(prev.Channels, channel)
		}
	}
	// One external id per channel per user: drop the user's old mapping.
	if old, linked := user.Channels[channel]; linked {
		delete(s.byChannel, identity.ChannelKey(channel, old))
	}

	if user.Channels == nil {
		user.Channels = make(map[string]string)
	}
	user.Channels[channel] = externalID
	s.byChannel[key] = userID
	return previousOwner, nil
}

// UnlinkChannel removes a channel mapping. Absent mappings are a no-op.
func (s *MemoryUserStore) UnlinkChannel(ctx context.Context, channel, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identity.ChannelKey(channel, externalID)
	ownerID, ok := s.byChannel[key]
	if !ok {
		return nil
	}
	delete(s.byChannel, key)
	if owner := s.users[ownerID]; owner != nil && owner.Channels[channel] == externalID {
		delete(owner.Channels, channel)
	}
	return nil
}

// Delete removes the user along with its username and channel mappings.
func (s *MemoryUserStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return fault.Newf(fault.NotFound, "user %s not found", id)
	}
	delete(s.users, id)
	delete(s.byName, user.Username)
	for channel, externalID := range user.Channels {
		delete(s.byChannel, identity.ChannelKey(channel, externalID))
	}
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns all users in creation order as deep copies.
func (s *MemoryUserStore) List(ctx context.Context) ([]*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*identity.User, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.users[id].Clone())
	}
	return result, nil
}

// CountByRole returns how many users reference the role name.
func (s *MemoryUserStore) CountByRole(ctx context.Context, roleName string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, user := range s.users {
		if user.RoleName == roleName {
			count++
		}
	}
	return count, nil
}

// Compile-time interface verification.
var _ identity.Store = (*MemoryUserStore)(nil)
