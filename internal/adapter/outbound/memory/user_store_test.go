package memory

import (
	"context"
	"testing"
	"time"

	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/domain/rbac"
)

func testUser(id, username string) *identity.User {
	return &identity.User{
		ID:        id,
		Username:  username,
		Email:     username + "@example.com",
		RoleName:  rbac.RoleUser,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestUserStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()

	if err := store.Create(ctx, testUser("u1", "alice")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("Username = %q, want alice", got.Username)
	}

	byName, err := store.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error: %v", err)
	}
	if byName.ID != "u1" {
		t.Errorf("ID = %q, want u1", byName.ID)
	}
}

func TestUserStore_DuplicateUsername(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()

	if err := store.Create(ctx, testUser("u1", "alice")); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	err := store.Create(ctx, testUser("u2", "alice"))
	if !fault.IsKind(err, fault.AlreadyExists) {
		t.Errorf("Create() error = %v, want AlreadyExists", err)
	}
}

func TestUserStore_GetNonExistent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()

	if _, err := store.Get(ctx, "nope"); !fault.IsKind(err, fault.NotFound) {
		t.Errorf("Get() error = %v, want NotFound", err)
	}
	if _, err := store.GetByUsername(ctx, "nope"); !fault.IsKind(err, fault.NotFound) {
		t.Errorf("GetByUsername() error = %v, want NotFound", err)
	}
	if _, err := store.GetByChannel(ctx, "slack", "U1"); !fault.IsKind(err, fault.NotFound) {
		t.Errorf("GetByChannel() error = %v, want NotFound", err)
	}
}

func TestUserStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()

	u := testUser("u1", "alice")
	u.Metadata = map[string]string{"team": "core"}
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Mutating the input after Create must not affect the store.
	u.Metadata["team"] = "tampered"

	got, _ := store.Get(ctx, "u1")
	if got.Metadata["team"] != "core" {
		t.Error("store should hold a deep copy of the input")
	}

	// Mutating a returned copy must not affect the store either.
	got.Metadata["team"] = "tampered"
	again, _ := store.Get(ctx, "u1")
	if again.Metadata["team"] != "core" {
		t.Error("Get should return a deep copy")
	}
}

func TestUserStore_LinkChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()
	store.Create(ctx, testUser("u1", "alice"))
	store.Create(ctx, testUser("u2", "bob"))

	prev, err := store.LinkChannel(ctx, "u1", "slack", "U111")
	if err != nil {
		t.Fatalf("LinkChannel() error: %v", err)
	}
	if prev != "" {
		t.Errorf("previous owner = %q, want empty", prev)
	}

	got, err := store.GetByChannel(ctx, "slack", "U111")
	if err != nil {
		t.Fatalf("GetByChannel() error: %v", err)
	}
	if got.ID != "u1" {
		t.Errorf("channel owner = %q, want u1", got.ID)
	}
	if got.Channels["slack"] != "U111" {
		t.Errorf("Channels = %v, want slack:U111", got.Channels)
	}

	// Re-linking the same mapping to the same user reports no change.
	prev, err = store.LinkChannel(ctx, "u1", "slack", "U111")
	if err != nil || prev != "" {
		t.Errorf("re-link = (%q, %v), want no-op", prev, err)
	}

	// Moving the mapping to another user reports the previous owner.
	prev, err = store.LinkChannel(ctx, "u2", "slack", "U111")
	if err != nil {
		t.Fatalf("LinkChannel() error: %v", err)
	}
	if prev != "u1" {
		t.Errorf("previous owner = %q, want u1", prev)
	}
	moved, _ := store.GetByChannel(ctx, "slack", "U111")
	if moved.ID != "u2" {
		t.Errorf("channel owner after move = %q, want u2", moved.ID)
	}
	old, _ := store.Get(ctx, "u1")
	if _, still := old.Channels["slack"]; still {
		t.Error("previous owner should have lost the channel mapping")
	}
}

func TestUserStore_LinkChannelReplacesOwnMapping(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()
	store.Create(ctx, testUser("u1", "alice"))

	store.LinkChannel(ctx, "u1", "slack", "U111")
	store.LinkChannel(ctx, "u1", "slack", "U222")

	if _, err := store.GetByChannel(ctx, "slack", "U111"); !fault.IsKind(err, fault.NotFound) {
		t.Errorf("stale mapping should be gone, got %v", err)
	}
	got, err := store.GetByChannel(ctx, "slack", "U222")
	if err != nil || got.ID != "u1" {
		t.Errorf("GetByChannel(U222) = (%v, %v), want u1", got, err)
	}
}

func TestUserStore_LinkChannelUnknownUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()

	if _, err := store.LinkChannel(ctx, "ghost", "slack", "U1"); !fault.IsKind(err, fault.NotFound) {
		t.Errorf("LinkChannel() error = %v, want NotFound", err)
	}
}

func TestUserStore_UnlinkChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()
	store.Create(ctx, testUser("u1", "alice"))
	store.LinkChannel(ctx, "u1", "discord", "D9")

	if err := store.UnlinkChannel(ctx, "discord", "D9"); err != nil {
		t.Fatalf("UnlinkChannel() error: %v", err)
	}
	if _, err := store.GetByChannel(ctx, "discord", "D9"); !fault.IsKind(err, fault.NotFound) {
		t.Errorf("mapping should be gone, got %v", err)
	}

	// Unlinking an absent mapping is a no-op.
	if err := store.UnlinkChannel(ctx, "discord", "D9"); err != nil {
		t.Errorf("second UnlinkChannel() error: %v", err)
	}
}

func TestUserStore_UpdatePreservesChannels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()
	store.Create(ctx, testUser("u1", "alice"))
	store.LinkChannel(ctx, "u1", "slack", "U111")

	got, _ := store.Get(ctx, "u1")
	got.RoleName = rbac.RoleOperator
	got.Channels = map[string]string{"slack": "FORGED"}
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	after, _ := store.Get(ctx, "u1")
	if after.RoleName != rbac.RoleOperator {
		t.Errorf("RoleName = %q, want operator", after.RoleName)
	}
	if after.Channels["slack"] != "U111" {
		t.Errorf("Channels = %v, update must not rewrite mappings", after.Channels)
	}
}

func TestUserStore_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()
	store.Create(ctx, testUser("u1", "alice"))
	store.LinkChannel(ctx, "u1", "slack", "U111")

	if err := store.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Get(ctx, "u1"); !fault.IsKind(err, fault.NotFound) {
		t.Errorf("Get() after delete = %v, want NotFound", err)
	}
	if _, err := store.GetByUsername(ctx, "alice"); !fault.IsKind(err, fault.NotFound) {
		t.Error("username index should be cleared")
	}
	if _, err := store.GetByChannel(ctx, "slack", "U111"); !fault.IsKind(err, fault.NotFound) {
		t.Error("channel index should be cleared")
	}
	if err := store.Delete(ctx, "u1"); !fault.IsKind(err, fault.NotFound) {
		t.Errorf("second Delete() = %v, want NotFound", err)
	}
}

func TestUserStore_ListCreationOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()
	store.Create(ctx, testUser("u3", "carol"))
	store.Create(ctx, testUser("u1", "alice"))
	store.Create(ctx, testUser("u2", "bob"))

	users, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	want := []string{"carol", "alice", "bob"}
	if len(users) != len(want) {
		t.Fatalf("List() returned %d users, want %d", len(users), len(want))
	}
	for i, u := range users {
		if u.Username != want[i] {
			t.Errorf("users[%d] = %q, want %q", i, u.Username, want[i])
		}
	}
}

func TestUserStore_CountByRole(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()
	store.Create(ctx, testUser("u1", "alice"))
	store.Create(ctx, testUser("u2", "bob"))
	admin := testUser("u3", "carol")
	admin.RoleName = rbac.RoleAdmin
	store.Create(ctx, admin)

	if n, _ := store.CountByRole(ctx, rbac.RoleUser); n != 2 {
		t.Errorf("CountByRole(user) = %d, want 2", n)
	}
	if n, _ := store.CountByRole(ctx, rbac.RoleAdmin); n != 1 {
		t.Errorf("CountByRole(admin) = %d, want 1", n)
	}
	if n, _ := store.CountByRole(ctx, "ghost"); n != 0 {
		t.Errorf("CountByRole(ghost) = %d, want 0", n)
	}
}
