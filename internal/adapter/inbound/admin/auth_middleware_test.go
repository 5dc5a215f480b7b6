package admin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/warden-platform/warden-core/internal/adapter/outbound/memory"
	"github.com/warden-platform/warden-core/internal/domain/rbac"
	"github.com/warden-platform/warden-core/internal/service"
)

// guardTestEnv runs the handler with dev mode off so requests must carry a
// valid bearer key whose owner's role holds the route's permission.
type guardTestEnv struct {
	mux      http.Handler
	adminKey string
	guestKey string
}

func newGuardTestEnv(t *testing.T) *guardTestEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := memory.NewUserStore()
	roles := memory.NewRoleStore()
	keyStore := memory.NewKeyStore()

	access := service.NewAccessService(users, roles, logger)
	identities := service.NewIdentityService(users, roles, logger,
		service.WithIdentityInvalidator(access))
	keys := service.NewKeyService(keyStore, users, logger)
	teams := service.NewTeamService(memory.NewTeamStore(), logger)

	ctx := context.Background()
	admin, err := identities.Create(ctx, service.CreateUserInput{
		Username: "root",
		Password: "correct horse battery staple",
		RoleName: rbac.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	guest, err := identities.Create(ctx, service.CreateUserInput{
		Username: "drive-by",
		Password: "correct horse battery staple",
		RoleName: rbac.RoleGuest,
	})
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}

	adminKey, err := keys.Generate(ctx, service.GenerateKeyInput{UserID: admin.ID, Name: "ops", TTLDays: 30})
	if err != nil {
		t.Fatalf("generate admin key: %v", err)
	}
	guestKey, err := keys.Generate(ctx, service.GenerateKeyInput{UserID: guest.ID, Name: "guest", TTLDays: 30})
	if err != nil {
		t.Fatalf("generate guest key: %v", err)
	}

	handler := NewAPIHandler(
		WithIdentityService(identities),
		WithAccessService(access),
		WithKeyService(keys),
		WithTeamService(teams),
		WithUserStore(users),
		WithAPILogger(logger),
	)
	return &guardTestEnv{
		mux:      handler.Routes(),
		adminKey: adminKey.RawKey,
		guestKey: guestKey.RawKey,
	}
}

func (e *guardTestEnv) get(t *testing.T, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func TestGuardRejectsMissingToken(t *testing.T) {
	env := newGuardTestEnv(t)

	rec := env.get(t, "/admin/api/users", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestGuardRejectsUnknownToken(t *testing.T) {
	env := newGuardTestEnv(t)

	rec := env.get(t, "/admin/api/users", "sk_definitely-not-issued")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown token status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestGuardRejectsInsufficientRole(t *testing.T) {
	env := newGuardTestEnv(t)

	rec := env.get(t, "/admin/api/users", env.guestKey)
	if rec.Code != http.StatusForbidden {
		t.Errorf("guest key status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestGuardAcceptsAdminKey(t *testing.T) {
	env := newGuardTestEnv(t)

	rec := env.get(t, "/admin/api/users", env.adminKey)
	if rec.Code != http.StatusOK {
		t.Errorf("admin key status = %d, want %d (body=%q)", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestGuardUniformRejection(t *testing.T) {
	env := newGuardTestEnv(t)

	// Unknown and malformed keys must be indistinguishable in the response
	// body so probing cannot learn whether a key ever existed.
	unknown := env.get(t, "/admin/api/users", "sk_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	malformed := env.get(t, "/admin/api/users", "not-even-prefixed")

	if unknown.Code != malformed.Code {
		t.Errorf("status mismatch: unknown=%d malformed=%d", unknown.Code, malformed.Code)
	}
	if unknown.Body.String() != malformed.Body.String() {
		t.Errorf("body mismatch: unknown=%q malformed=%q", unknown.Body.String(), malformed.Body.String())
	}
}
