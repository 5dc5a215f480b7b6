package admin

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/warden-platform/warden-core/internal/domain/rbac"
	"github.com/warden-platform/warden-core/internal/service"
)

func TestHandleCreateUser(t *testing.T) {
	env := newAPITestEnv(t)

	rec := env.doRequest(t, "POST", "/admin/api/users", service.CreateUserInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse battery staple",
		RoleName: rbac.RoleUser,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /admin/api/users status = %d, want %d (body=%q)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp userResponse
	decodeBody(t, rec, &resp)
	if resp.Username != "alice" {
		t.Errorf("username = %q, want alice", resp.Username)
	}
	if resp.RoleName != rbac.RoleUser {
		t.Errorf("role = %q, want user", resp.RoleName)
	}
	if !resp.IsActive {
		t.Error("new user should be active")
	}
	if resp.ID == "" {
		t.Error("id missing from response")
	}
}

func TestHandleCreateUserNeverEchoesCredentials(t *testing.T) {
	env := newAPITestEnv(t)

	rec := env.doRequest(t, "POST", "/admin/api/users", service.CreateUserInput{
		Username: "bob",
		Password: "hunter2hunter2hunter2",
		RoleName: rbac.RoleUser,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	body := rec.Body.String()
	for _, banned := range []string{"password", "hash", "salt", "hunter2"} {
		if strings.Contains(strings.ToLower(body), banned) {
			t.Errorf("response leaks %q: %s", banned, body)
		}
	}
}

func TestHandleCreateUserDuplicate(t *testing.T) {
	env := newAPITestEnv(t)
	env.mustCreateUser(t, "carol", rbac.RoleUser)

	rec := env.doRequest(t, "POST", "/admin/api/users", service.CreateUserInput{
		Username: "carol",
		Password: "correct horse battery staple",
		RoleName: rbac.RoleUser,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate username status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestHandleCreateUserUnknownRole(t *testing.T) {
	env := newAPITestEnv(t)

	rec := env.doRequest(t, "POST", "/admin/api/users", service.CreateUserInput{
		Username: "dave",
		Password: "correct horse battery staple",
		RoleName: "astronaut",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown role status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleListUsers(t *testing.T) {
	env := newAPITestEnv(t)
	env.mustCreateUser(t, "erin", rbac.RoleUser)
	env.mustCreateUser(t, "frank", rbac.RoleViewer)

	rec := env.doRequest(t, "GET", "/admin/api/users", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /admin/api/users status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Users []userResponse `json:"users"`
		Count int            `json:"count"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 2 || len(resp.Users) != 2 {
		t.Errorf("count = %d (users %d), want 2", resp.Count, len(resp.Users))
	}
}

func TestHandleGetUser(t *testing.T) {
	env := newAPITestEnv(t)
	id := env.mustCreateUser(t, "grace", rbac.RoleOperator)

	rec := env.doRequest(t, "GET", "/admin/api/users/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET user status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp userResponse
	decodeBody(t, rec, &resp)
	if resp.ID != id || resp.Username != "grace" {
		t.Errorf("got id=%q username=%q, want id=%q username=grace", resp.ID, resp.Username, id)
	}

	rec = env.doRequest(t, "GET", "/admin/api/users/no-such-id", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown user status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleChangeRole(t *testing.T) {
	env := newAPITestEnv(t)
	id := env.mustCreateUser(t, "heidi", rbac.RoleGuest)

	rec := env.doRequest(t, "PUT", "/admin/api/users/"+id+"/role", changeRoleRequest{Role: rbac.RoleOperator})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT role status = %d, want %d (body=%q)", rec.Code, http.StatusOK, rec.Body.String())
	}

	user, err := env.identities.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get after role change: %v", err)
	}
	if user.RoleName != rbac.RoleOperator {
		t.Errorf("role after change = %q, want operator", user.RoleName)
	}
}

func TestHandleChangeRoleMissingRole(t *testing.T) {
	env := newAPITestEnv(t)
	id := env.mustCreateUser(t, "ivan", rbac.RoleGuest)

	rec := env.doRequest(t, "PUT", "/admin/api/users/"+id+"/role", changeRoleRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty role status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleDeactivateUser(t *testing.T) {
	env := newAPITestEnv(t)
	id := env.mustCreateUser(t, "judy", rbac.RoleUser)

	rec := env.doRequest(t, "POST", "/admin/api/users/"+id+"/deactivate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d, want %d", rec.Code, http.StatusOK)
	}

	user, err := env.identities.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get after deactivate: %v", err)
	}
	if user.IsActive {
		t.Error("user still active after deactivation")
	}
}

func TestHandleLinkChannel(t *testing.T) {
	env := newAPITestEnv(t)
	first := env.mustCreateUser(t, "kara", rbac.RoleUser)
	second := env.mustCreateUser(t, "liam", rbac.RoleUser)

	rec := env.doRequest(t, "POST", "/admin/api/users/"+first+"/channels", linkChannelRequest{
		Channel:    "telegram",
		ExternalID: "tg-9000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("link status = %d, want %d (body=%q)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["previous_owner"] != "" {
		t.Errorf("first link reported previous owner %q", resp["previous_owner"])
	}

	// Rebinding the same channel identity to another user reports the
	// previous owner so the gateway can notify them.
	rec = env.doRequest(t, "POST", "/admin/api/users/"+second+"/channels", linkChannelRequest{
		Channel:    "telegram",
		ExternalID: "tg-9000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("rebind status = %d, want %d", rec.Code, http.StatusOK)
	}
	resp = map[string]string{}
	decodeBody(t, rec, &resp)
	if resp["previous_owner"] != first {
		t.Errorf("previous_owner = %q, want %q", resp["previous_owner"], first)
	}

	got, err := env.identities.GetByChannel(context.Background(), "telegram", "tg-9000")
	if err != nil {
		t.Fatalf("get by channel: %v", err)
	}
	if got.ID != second {
		t.Errorf("channel now resolves to %q, want %q", got.ID, second)
	}
}

func TestHandleLinkChannelValidation(t *testing.T) {
	env := newAPITestEnv(t)
	id := env.mustCreateUser(t, "mallory", rbac.RoleUser)

	rec := env.doRequest(t, "POST", "/admin/api/users/"+id+"/channels", linkChannelRequest{Channel: "slack"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing external_id status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
