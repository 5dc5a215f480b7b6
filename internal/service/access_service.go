package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/warden-platform/warden-core/internal/domain/audit"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/domain/rbac"
)

// lruEntry is a doubly-linked list node for the LRU cache.
type lruEntry struct {
	key     uint64
	allowed bool
	prev    *lruEntry
	next    *lruEntry
}

// ResultCache provides bounded LRU caching for authorization check results.
// Thread-safe with Mutex (both Get and Put mutate LRU order).
type ResultCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry // most recently used
	tail    *lruEntry // least recently used
	maxSize int
}

// NewResultCache creates a new LRU cache with the given max size.
func NewResultCache(maxSize int) *ResultCache {
	return &ResultCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a cached result. Returns (allowed, true) on hit,
// (false, false) on miss. On hit, the entry is promoted to the head.
func (c *ResultCache) Get(key uint64) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.allowed, true
	}
	return false, false
}

// Put stores a result. If at capacity, the least recently used entry is
// evicted.
func (c *ResultCache) Put(key uint64, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.allowed = allowed
		c.moveToHeadLocked(e)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}

	e := &lruEntry{key: key, allowed: allowed}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// Size returns current cache size.
func (c *ResultCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// moveToHeadLocked moves an existing entry to the head. Must be called with
// lock held.
func (c *ResultCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

// pushHeadLocked inserts an entry at the head. Must be called with lock held.
func (c *ResultCache) pushHeadLocked(e *lruEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

// unlinkLocked removes an entry from the linked list. Must be called with
// lock held.
func (c *ResultCache) unlinkLocked(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

// evictTailLocked removes the least recently used entry. Must be called with
// lock held.
func (c *ResultCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// checkCacheKey hashes one authorization check. The registry generation is
// part of the key, so bumping it strands every older entry; stale entries
// age out through normal LRU eviction.
func checkCacheKey(generation uint64, userID string, perm rbac.Permission) uint64 {
	h := xxhash.New()

	var genBuf [8]byte
	for i := 0; i < 8; i++ {
		genBuf[i] = byte(generation >> (8 * i))
	}
	_, _ = h.Write(genBuf[:])
	_, _ = h.Write([]byte{0}) // separator

	_, _ = h.WriteString(userID)
	_, _ = h.Write([]byte{0})

	_, _ = h.WriteString(perm.Name())

	return h.Sum64()
}

// AccessService answers authorization checks against the role registry and
// manages custom roles. Checks are a single set-membership test over the
// user's role: no inheritance, no wildcards, denial is the default.
//
// Results are cached in a bounded LRU keyed by (generation, user, permission);
// any role or user-role mutation bumps the generation and so invalidates all
// cached results at once.
type AccessService struct {
	users   identity.Store
	roles   rbac.Store
	logger  *slog.Logger
	rec     AuditRecorder
	persist PersistHook

	cache      *ResultCache
	generation atomic.Uint64
}

// AccessOption configures AccessService.
type AccessOption func(*AccessService)

// WithAccessCacheSize sets the maximum number of cached check results.
func WithAccessCacheSize(size int) AccessOption {
	return func(s *AccessService) {
		s.cache = NewResultCache(size)
	}
}

// WithAccessAudit attaches a ledger for role mutation records.
func WithAccessAudit(rec AuditRecorder) AccessOption {
	return func(s *AccessService) { s.rec = rec }
}

// WithAccessPersist attaches a hook run after successful mutations.
func WithAccessPersist(hook PersistHook) AccessOption {
	return func(s *AccessService) { s.persist = hook }
}

// NewAccessService creates an AccessService over the given stores.
func NewAccessService(users identity.Store, roles rbac.Store, logger *slog.Logger, opts ...AccessOption) *AccessService {
	s := &AccessService{
		users:  users,
		roles:  roles,
		logger: logger,
		cache:  NewResultCache(1000), // default 1000 entries
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check reports whether the user may perform the permission: the user must
// be active, the user's role must exist, and the role's set must contain the
// permission. Unknown users are denied without error.
func (s *AccessService) Check(ctx context.Context, userID string, perm rbac.Permission) (bool, error) {
	if !perm.Valid() {
		return false, fault.Newf(fault.InvalidArgument, "unknown permission %d", perm)
	}

	key := checkCacheKey(s.generation.Load(), userID, perm)
	if allowed, ok := s.cache.Get(key); ok {
		return allowed, nil
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if fault.IsKind(err, fault.NotFound) {
			// Unknown users are denied, not cached: user creation does
			// not bump the generation.
			return false, nil
		}
		return false, err
	}

	allowed := false
	if user.IsActive {
		role, err := s.roles.Get(ctx, user.RoleName)
		switch {
		case fault.IsKind(err, fault.NotFound):
			// Dangling role reference. Deny; role creation bumps the
			// generation, so caching is safe.
			s.logger.Warn("user references missing role",
				"user_id", userID,
				"role", user.RoleName,
			)
		case err != nil:
			return false, err
		default:
			allowed = role.Has(perm)
		}
	}

	s.cache.Put(key, allowed)
	return allowed, nil
}

// Permissions returns the user's effective permission set. Inactive users
// have no effective permissions, mirroring Check.
func (s *AccessService) Permissions(ctx context.Context, userID string) (rbac.PermissionSet, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !user.IsActive {
		return 0, nil
	}
	role, err := s.roles.Get(ctx, user.RoleName)
	if err != nil {
		if fault.IsKind(err, fault.NotFound) {
			return 0, nil
		}
		return 0, err
	}
	return role.Permissions, nil
}

// CreateRoleInput carries the fields for a new custom role.
type CreateRoleInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// CreateRole adds a custom role. Permission names must come from the fixed
// catalog.
func (s *AccessService) CreateRole(ctx context.Context, input CreateRoleInput) (rbac.Role, error) {
	if input.Name == "" {
		return rbac.Role{}, fault.New(fault.InvalidArgument, "role name is required")
	}

	var set rbac.PermissionSet
	for _, name := range input.Permissions {
		perm, ok := rbac.ParsePermission(name)
		if !ok {
			return rbac.Role{}, fault.Newf(fault.InvalidArgument, "unknown permission %q", name)
		}
		set = set.With(perm)
	}

	role := rbac.Role{
		Name:        input.Name,
		Description: input.Description,
		Permissions: set,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		return rbac.Role{}, err
	}
	s.Invalidate()

	s.logger.Info("role created",
		"role", role.Name,
		"permissions", set.Len(),
	)
	s.record(ctx, "role.create", "role:"+role.Name,
		WithDetail("granting "+joinPermissionNames(set)))
	s.persisted(ctx)
	return role, nil
}

// DeleteRole removes a custom role. System roles and roles still assigned
// to users are refused.
func (s *AccessService) DeleteRole(ctx context.Context, name string) error {
	role, err := s.roles.Get(ctx, name)
	if err != nil {
		return err
	}

	if !role.IsSystem {
		count, err := s.users.CountByRole(ctx, name)
		if err != nil {
			return err
		}
		if count > 0 {
			return fault.Newf(fault.PermissionDenied, "role %s is assigned to %d user(s)", name, count)
		}
	}

	// The store refuses system roles.
	if err := s.roles.Delete(ctx, name); err != nil {
		return err
	}
	s.Invalidate()

	s.logger.Info("role deleted", "role", name)
	s.record(ctx, "role.delete", "role:"+name)
	s.persisted(ctx)
	return nil
}

// ListRoles returns all roles, system roles first.
func (s *AccessService) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return s.roles.List(ctx)
}

// Invalidate strands all cached check results by bumping the registry
// generation. Called by the identity service on role assignment changes and
// internally on role mutations.
func (s *AccessService) Invalidate() {
	s.generation.Add(1)
}

// CacheSize returns the number of cached check results, stale entries
// included.
func (s *AccessService) CacheSize() int { return s.cache.Size() }

func (s *AccessService) record(ctx context.Context, action, resource string, opts ...EntryOption) {
	if s.rec == nil {
		return
	}
	if _, err := s.rec.Append(ctx, action, audit.ActorSystem, resource, audit.DecisionAllow, opts...); err != nil {
		s.logger.Error("failed to audit role operation",
			"action", action,
			"error", err,
		)
	}
}

func (s *AccessService) persisted(ctx context.Context) {
	if s.persist != nil {
		s.persist(ctx)
	}
}

func joinPermissionNames(set rbac.PermissionSet) string {
	names := set.Names()
	if len(names) == 0 {
		return "no permissions"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}

// Compile-time interface verification.
var _ Invalidator = (*AccessService)(nil)
