package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/warden-platform/warden-core/internal/adapter/outbound/memory"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/domain/rbac"
)

// newAccessService builds a service over fresh in-memory stores.
func newAccessService(t *testing.T, opts ...AccessOption) (*AccessService, *memory.MemoryUserStore, *memory.MemoryRoleStore) {
	t.Helper()

	users := memory.NewUserStore()
	roles := memory.NewRoleStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAccessService(users, roles, logger, opts...), users, roles
}

// seedUser inserts an active user directly into the store, bypassing the
// identity service so tests skip password hashing.
func seedUser(t *testing.T, users identity.Store, id, role string) *identity.User {
	t.Helper()

	user := &identity.User{
		ID:        id,
		Username:  id,
		RoleName:  role,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		Channels:  map[string]string{},
		Metadata:  map[string]string{},
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return user
}

// ---------------------------------------------------------------------------
// Check
// ---------------------------------------------------------------------------

func TestCheck_SystemRoleGrants(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAccessService(t)
	ctx := context.Background()

	for _, role := range []string{rbac.RoleAdmin, rbac.RoleOperator, rbac.RoleUser, rbac.RoleViewer, rbac.RoleGuest} {
		seedUser(t, users, "u-"+role, role)
	}

	tests := []struct {
		user string
		perm rbac.Permission
		want bool
	}{
		{"u-guest", rbac.PermChatSend, true},
		{"u-guest", rbac.PermChatHistory, false},
		{"u-guest", rbac.PermToolsExecute, false},
		{"u-viewer", rbac.PermChatHistory, true},
		{"u-viewer", rbac.PermDataOwn, true},
		{"u-viewer", rbac.PermToolsExecute, false},
		{"u-user", rbac.PermToolsExecute, true},
		{"u-user", rbac.PermToolsFileRead, true},
		{"u-user", rbac.PermToolsShell, false},
		{"u-user", rbac.PermAdminUsers, false},
		{"u-operator", rbac.PermToolsShell, true},
		{"u-operator", rbac.PermAdminAudit, true},
		{"u-operator", rbac.PermAdminUsers, false},
		{"u-admin", rbac.PermAdminSystem, true},
		{"u-admin", rbac.PermDataAll, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.user, tt.perm), func(t *testing.T) {
			got, err := svc.Check(ctx, tt.user, tt.perm)
			if err != nil {
				t.Fatalf("Check() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Check(%s, %s) = %v, want %v", tt.user, tt.perm, got, tt.want)
			}
		})
	}
}

func TestCheck_DeniesInactiveUser(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAccessService(t)
	ctx := context.Background()

	user := seedUser(t, users, "alice", rbac.RoleAdmin)
	user.IsActive = false
	if err := users.Update(ctx, user); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	allowed, err := svc.Check(ctx, "alice", rbac.PermChatSend)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if allowed {
		t.Error("Check() = true for inactive user, want false")
	}
}

func TestCheck_DeniesUnknownUserWithoutError(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAccessService(t)

	allowed, err := svc.Check(context.Background(), "ghost", rbac.PermChatSend)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if allowed {
		t.Error("Check() = true for unknown user, want false")
	}
}

func TestCheck_InvalidPermission(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAccessService(t)
	seedUser(t, users, "alice", rbac.RoleAdmin)

	_, err := svc.Check(context.Background(), "alice", rbac.Permission(200))
	if !fault.IsKind(err, fault.InvalidArgument) {
		t.Errorf("Check() error = %v, want InvalidArgument", err)
	}
}

// ---------------------------------------------------------------------------
// Result cache
// ---------------------------------------------------------------------------

func TestCheck_CachesResults(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAccessService(t)
	ctx := context.Background()

	user := seedUser(t, users, "alice", rbac.RoleGuest)

	allowed, err := svc.Check(ctx, "alice", rbac.PermChatSend)
	if err != nil || !allowed {
		t.Fatalf("Check() = %v, %v; want true", allowed, err)
	}
	if svc.CacheSize() == 0 {
		t.Fatal("cache is empty after a check")
	}

	// Mutate the store behind the service's back. The cached result must
	// still be served until the generation is bumped.
	user.IsActive = false
	if err := users.Update(ctx, user); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	allowed, err = svc.Check(ctx, "alice", rbac.PermChatSend)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !allowed {
		t.Error("Check() bypassed the cache, want the stale cached result")
	}

	svc.Invalidate()

	allowed, err = svc.Check(ctx, "alice", rbac.PermChatSend)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if allowed {
		t.Error("Check() = true after Invalidate(), want the fresh result")
	}
}

func TestCheck_RoleChangeThroughIdentityInvalidates(t *testing.T) {
	t.Parallel()

	users := memory.NewUserStore()
	roles := memory.NewRoleStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	access := NewAccessService(users, roles, logger)
	idsvc := NewIdentityService(users, roles, logger, WithIdentityInvalidator(access))
	ctx := context.Background()

	user, err := idsvc.Create(ctx, CreateUserInput{
		Username: "alice", Password: "pw", RoleName: rbac.RoleGuest,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if allowed, _ := access.Check(ctx, user.ID, rbac.PermChatSend); !allowed {
		t.Error("guest chat.send = false, want true")
	}
	if allowed, _ := access.Check(ctx, user.ID, rbac.PermToolsExecute); allowed {
		t.Error("guest tools.execute = true, want false")
	}

	if err := idsvc.ChangeRole(ctx, user.ID, rbac.RoleOperator); err != nil {
		t.Fatalf("ChangeRole() error: %v", err)
	}

	if allowed, _ := access.Check(ctx, user.ID, rbac.PermToolsExecute); !allowed {
		t.Error("operator tools.execute = false after role change, want true")
	}
}

func TestCheck_CacheBounded(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAccessService(t, WithAccessCacheSize(10))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("user-%d", i)
		seedUser(t, users, id, rbac.RoleUser)
		if _, err := svc.Check(ctx, id, rbac.PermChatSend); err != nil {
			t.Fatalf("Check(%s) error: %v", id, err)
		}
	}

	if svc.CacheSize() > 10 {
		t.Errorf("cache exceeded max size: got %d, want <= 10", svc.CacheSize())
	}
}

func TestCheck_Concurrent(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAccessService(t)
	ctx := context.Background()
	seedUser(t, users, "alice", rbac.RoleUser)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				allowed, err := svc.Check(ctx, "alice", rbac.PermChatSend)
				if err != nil {
					t.Errorf("Check() error: %v", err)
					return
				}
				if !allowed {
					t.Error("Check() = false, want true")
					return
				}
				if i%10 == 0 {
					svc.Invalidate()
				}
			}
		}()
	}
	wg.Wait()
}

func TestResultCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	cache := NewResultCache(3)
	cache.Put(1, true)
	cache.Put(2, true)
	cache.Put(3, true)

	// Touch 1, making 2 the least recently used.
	if _, ok := cache.Get(1); !ok {
		t.Fatal("Get(1) missed")
	}

	cache.Put(4, true)

	if _, ok := cache.Get(2); ok {
		t.Error("Get(2) hit, want evicted")
	}
	if _, ok := cache.Get(1); !ok {
		t.Error("Get(1) missed, want retained")
	}
	if _, ok := cache.Get(4); !ok {
		t.Error("Get(4) missed, want present")
	}
	if cache.Size() != 3 {
		t.Errorf("Size() = %d, want 3", cache.Size())
	}
}

func TestCheckCacheKey_Deterministic(t *testing.T) {
	t.Parallel()

	k1 := checkCacheKey(7, "alice", rbac.PermChatSend)
	k2 := checkCacheKey(7, "alice", rbac.PermChatSend)
	if k1 != k2 {
		t.Errorf("same inputs hashed differently: %d vs %d", k1, k2)
	}

	if checkCacheKey(8, "alice", rbac.PermChatSend) == k1 {
		t.Error("generation bump did not change the key")
	}
	if checkCacheKey(7, "bob", rbac.PermChatSend) == k1 {
		t.Error("different user did not change the key")
	}
	if checkCacheKey(7, "alice", rbac.PermChatHistory) == k1 {
		t.Error("different permission did not change the key")
	}
}

// ---------------------------------------------------------------------------
// Permissions
// ---------------------------------------------------------------------------

func TestPermissions(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAccessService(t)
	ctx := context.Background()
	seedUser(t, users, "alice", rbac.RoleViewer)

	set, err := svc.Permissions(ctx, "alice")
	if err != nil {
		t.Fatalf("Permissions() error: %v", err)
	}
	want := rbac.NewPermissionSet(rbac.PermChatSend, rbac.PermChatHistory, rbac.PermDataOwn)
	if set != want {
		t.Errorf("Permissions() = %v, want %v", set.Names(), want.Names())
	}
}

func TestPermissions_InactiveUserHasNone(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAccessService(t)
	ctx := context.Background()

	user := seedUser(t, users, "alice", rbac.RoleAdmin)
	user.IsActive = false
	if err := users.Update(ctx, user); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	set, err := svc.Permissions(ctx, "alice")
	if err != nil {
		t.Fatalf("Permissions() error: %v", err)
	}
	if set.Len() != 0 {
		t.Errorf("Permissions() = %v, want empty set for inactive user", set.Names())
	}
}

func TestPermissions_UnknownUser(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAccessService(t)

	_, err := svc.Permissions(context.Background(), "ghost")
	if !fault.IsKind(err, fault.NotFound) {
		t.Errorf("Permissions() error = %v, want NotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Role management
// ---------------------------------------------------------------------------

func TestCreateRole(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAccessService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, CreateRoleInput{
		Name:        "auditor",
		Description: "Read-only audit access",
		Permissions: []string{"admin.audit", "system.monitor"},
	})
	if err != nil {
		t.Fatalf("CreateRole() error: %v", err)
	}
	if role.IsSystem {
		t.Error("custom role marked as system")
	}
	if !role.Has(rbac.PermAdminAudit) || !role.Has(rbac.PermSystemMonitor) {
		t.Errorf("role permissions = %v, want admin.audit and system.monitor", role.Permissions.Names())
	}
	if role.Has(rbac.PermToolsShell) {
		t.Error("role granted a permission it was not given")
	}

	// The new role is immediately usable for checks.
	seedUser(t, users, "carol", "auditor")
	if allowed, _ := svc.Check(ctx, "carol", rbac.PermAdminAudit); !allowed {
		t.Error("Check(admin.audit) = false for auditor, want true")
	}
	if allowed, _ := svc.Check(ctx, "carol", rbac.PermToolsExecute); allowed {
		t.Error("Check(tools.execute) = true for auditor, want false")
	}
}

func TestCreateRole_Validation(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAccessService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateRoleInput
		kind  fault.Kind
	}{
		{"empty name", CreateRoleInput{Permissions: []string{"chat.send"}}, fault.InvalidArgument},
		{"unknown permission", CreateRoleInput{Name: "x", Permissions: []string{"chat.send", "fly.moon"}}, fault.InvalidArgument},
		{"system name taken", CreateRoleInput{Name: rbac.RoleAdmin, Permissions: []string{"chat.send"}}, fault.AlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateRole(ctx, tt.input)
			if !fault.IsKind(err, tt.kind) {
				t.Errorf("CreateRole() error = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestCreateRole_Duplicate(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAccessService(t)
	ctx := context.Background()

	input := CreateRoleInput{Name: "auditor", Permissions: []string{"admin.audit"}}
	if _, err := svc.CreateRole(ctx, input); err != nil {
		t.Fatalf("CreateRole() first error: %v", err)
	}
	if _, err := svc.CreateRole(ctx, input); !fault.IsKind(err, fault.AlreadyExists) {
		t.Errorf("CreateRole() second error = %v, want AlreadyExists", err)
	}
}

func TestDeleteRole(t *testing.T) {
	t.Parallel()

	svc, _, roles := newAccessService(t)
	ctx := context.Background()

	if _, err := svc.CreateRole(ctx, CreateRoleInput{Name: "temp", Permissions: []string{"chat.send"}}); err != nil {
		t.Fatalf("CreateRole() error: %v", err)
	}
	if err := svc.DeleteRole(ctx, "temp"); err != nil {
		t.Fatalf("DeleteRole() error: %v", err)
	}
	if _, err := roles.Get(ctx, "temp"); !fault.IsKind(err, fault.NotFound) {
		t.Errorf("role still present after delete: %v", err)
	}
}

func TestDeleteRole_SystemRefused(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAccessService(t)

	err := svc.DeleteRole(context.Background(), rbac.RoleGuest)
	if !fault.IsKind(err, fault.PermissionDenied) {
		t.Errorf("DeleteRole(guest) error = %v, want PermissionDenied", err)
	}
}

func TestDeleteRole_ReferencedRefused(t *testing.T) {
	t.Parallel()

	svc, users, _ := newAccessService(t)
	ctx := context.Background()

	if _, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Permissions: []string{"admin.audit"}}); err != nil {
		t.Fatalf("CreateRole() error: %v", err)
	}
	seedUser(t, users, "carol", "auditor")

	err := svc.DeleteRole(ctx, "auditor")
	if !fault.IsKind(err, fault.PermissionDenied) {
		t.Errorf("DeleteRole() error = %v, want PermissionDenied while referenced", err)
	}
}

func TestDeleteRole_Unknown(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAccessService(t)

	err := svc.DeleteRole(context.Background(), "no-such-role")
	if !fault.IsKind(err, fault.NotFound) {
		t.Errorf("DeleteRole() error = %v, want NotFound", err)
	}
}

func TestListRoles_SystemFirst(t *testing.T) {
	t.Parallel()

	svc, _, _ := newAccessService(t)
	ctx := context.Background()

	if _, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", Permissions: []string{"admin.audit"}}); err != nil {
		t.Fatalf("CreateRole() error: %v", err)
	}

	roles, err := svc.ListRoles(ctx)
	if err != nil {
		t.Fatalf("ListRoles() error: %v", err)
	}
	if len(roles) != 6 {
		t.Fatalf("ListRoles() = %d roles, want 6 (5 system + 1 custom)", len(roles))
	}
	for i, role := range roles[:5] {
		if !role.IsSystem {
			t.Errorf("roles[%d] = %s is custom, want system roles first", i, role.Name)
		}
	}
	if roles[5].Name != "auditor" || roles[5].IsSystem {
		t.Errorf("roles[5] = %+v, want the custom auditor role", roles[5])
	}
}
