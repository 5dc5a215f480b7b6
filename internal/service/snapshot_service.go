package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/warden-platform/warden-core/internal/adapter/outbound/state"
	"github.com/warden-platform/warden-core/internal/domain/apikey"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/domain/rbac"
	"github.com/warden-platform/warden-core/internal/domain/team"
)

// KeyExporter is the key registry plus the snapshot-only export of every
// record keyed by token hash. The memory store implements it.
type KeyExporter interface {
	apikey.Store
	Export() map[string]apikey.Key
}

// TeamExporter is the team registry plus the snapshot-only export that
// includes inactive teams, which List deliberately hides. The memory store
// implements it.
type TeamExporter interface {
	team.Store
	Export() ([]*team.Team, []*team.Invitation)
}

// SnapshotService captures the in-memory registries into the state file and
// restores them at boot. The registries stay authoritative while the
// process runs; the snapshot exists so their contents survive a restart.
// Mutating services reach it through the PersistHook, never directly.
type SnapshotService struct {
	store   *state.FileStateStore
	users   identity.Store
	roles   rbac.Store
	keys    KeyExporter
	teams   TeamExporter
	threats *ThreatService
	logger  *slog.Logger

	// createdAt is carried from the restored snapshot so the file keeps
	// its original creation stamp across rewrites.
	createdAt time.Time
}

// NewSnapshotService wires the snapshot pipeline over the given registries.
func NewSnapshotService(
	store *state.FileStateStore,
	users identity.Store,
	roles rbac.Store,
	keys KeyExporter,
	teams TeamExporter,
	threats *ThreatService,
	logger *slog.Logger,
) *SnapshotService {
	return &SnapshotService{
		store:     store,
		users:     users,
		roles:     roles,
		keys:      keys,
		teams:     teams,
		threats:   threats,
		logger:    logger,
		createdAt: time.Now().UTC(),
	}
}

// Capture assembles a point-in-time snapshot of every registry. Each store
// is read under its own lock; the snapshot is consistent per registry, not
// across them.
func (s *SnapshotService) Capture(ctx context.Context) (*state.AppState, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot users: %w", err)
	}
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot roles: %w", err)
	}

	st := &state.AppState{
		Version:     state.StateVersion,
		Users:       make([]identity.User, 0, len(users)),
		CustomRoles: []state.RoleEntry{},
		APIKeys:     []state.KeyEntry{},
		Teams:       []team.Team{},
		Invitations: []team.Invitation{},
		Threat:      s.threats.ExportState(),
		CreatedAt:   s.createdAt,
	}

	for _, u := range users {
		st.Users = append(st.Users, *u)
	}

	// System roles are rebuilt from the catalog at boot; only custom
	// roles are worth persisting.
	for _, role := range roles {
		if role.IsSystem {
			continue
		}
		st.CustomRoles = append(st.CustomRoles, state.NewRoleEntry(role))
	}

	exported := s.keys.Export()
	hashes := make([]string, 0, len(exported))
	for hash := range exported {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)
	for _, hash := range hashes {
		st.APIKeys = append(st.APIKeys, state.KeyEntry{TokenHash: hash, Key: exported[hash]})
	}

	teams, invites := s.teams.Export()
	for _, t := range teams {
		st.Teams = append(st.Teams, *t)
	}
	for _, inv := range invites {
		st.Invitations = append(st.Invitations, *inv)
	}

	return st, nil
}

// Save captures the registries and writes the snapshot atomically.
func (s *SnapshotService) Save(ctx context.Context) error {
	st, err := s.Capture(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Save(st); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Restore loads the snapshot and replays it into the registries: custom
// roles first so users can reference them, then users (whose channel links
// ride along on the record), key records, teams, invitations, and finally
// the detector state. Restoring into non-empty registries is a caller bug
// and surfaces as AlreadyExists.
func (s *SnapshotService) Restore(ctx context.Context) error {
	st, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if st.Version != state.StateVersion {
		return fault.Newf(fault.InvalidArgument, "unsupported state version %q", st.Version)
	}
	if !st.CreatedAt.IsZero() {
		s.createdAt = st.CreatedAt
	}

	for _, entry := range st.CustomRoles {
		role, err := entry.Role()
		if err != nil {
			return fmt.Errorf("restore roles: %w", err)
		}
		if err := s.roles.Create(ctx, role); err != nil {
			return fmt.Errorf("restore role %s: %w", entry.Name, err)
		}
	}

	for i := range st.Users {
		u := st.Users[i]
		if err := s.users.Create(ctx, &u); err != nil {
			return fmt.Errorf("restore user %s: %w", u.Username, err)
		}
	}

	for _, entry := range st.APIKeys {
		key := entry.Key
		if err := s.keys.Put(ctx, entry.TokenHash, &key); err != nil {
			return fmt.Errorf("restore api key %s: %w", key.ID, err)
		}
	}

	for i := range st.Teams {
		t := st.Teams[i]
		if err := s.teams.Create(ctx, &t); err != nil {
			return fmt.Errorf("restore team %s: %w", t.ID, err)
		}
	}
	for i := range st.Invitations {
		inv := st.Invitations[i]
		if err := s.teams.PutInvitation(ctx, &inv); err != nil {
			return fmt.Errorf("restore invitation %s: %w", inv.Code, err)
		}
	}

	s.threats.ImportState(ctx, st.Threat)

	s.logger.Info("state restored",
		"users", len(st.Users),
		"custom_roles", len(st.CustomRoles),
		"api_keys", len(st.APIKeys),
		"teams", len(st.Teams),
	)
	return nil
}

// Hook adapts Save into the fire-and-forget PersistHook the mutating
// services call. Failures are logged, never propagated: a snapshot miss
// must not fail the mutation that already happened.
func (s *SnapshotService) Hook() PersistHook {
	return func(ctx context.Context) {
		if err := s.Save(ctx); err != nil {
			s.logger.Error("state snapshot failed", "error", err)
		}
	}
}
