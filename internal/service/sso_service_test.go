package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/warden-platform/warden-core/internal/adapter/outbound/memory"
	"github.com/warden-platform/warden-core/internal/domain/audit"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/sso"
	"github.com/warden-platform/warden-core/internal/metrics"
)

// fakeBroker satisfies sso.Broker with canned responses.
type fakeBroker struct {
	name string
	user *sso.User
	err  error
}

var _ sso.Broker = (*fakeBroker)(nil)

func (b *fakeBroker) Provider() string { return b.name }

func (b *fakeBroker) AuthorizeURL(_ context.Context, state string) (string, string, error) {
	if state == "" {
		state = "fresh-state"
	}
	return "https://idp.example.com/authorize?state=" + state, state, nil
}

func (b *fakeBroker) Redeem(context.Context, string) (*sso.User, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.user, nil
}

func newSSOService(t *testing.T, opts ...SSOOption) (*SSOService, *memory.MemoryUserStore) {
	t.Helper()

	users := memory.NewUserStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSSOService(users, logger, opts...), users
}

func oktaUser(sub string) *sso.User {
	return &sso.User{
		ExternalID: sub,
		Email:      "alice@example.com",
		Name:       "Alice",
		Provider:   "okta",
		Groups:     []string{"engineering"},
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestRegister_DuplicateProvider(t *testing.T) {
	t.Parallel()

	svc, _ := newSSOService(t)

	if err := svc.Register(&fakeBroker{name: "okta"}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := svc.Register(&fakeBroker{name: "okta"}); !fault.IsKind(err, fault.AlreadyExists) {
		t.Errorf("Register() duplicate error = %v, want AlreadyExists", err)
	}
	if err := svc.Register(&fakeBroker{name: ""}); !fault.IsKind(err, fault.InvalidArgument) {
		t.Errorf("Register() empty name error = %v, want InvalidArgument", err)
	}
}

func TestProviders_Sorted(t *testing.T) {
	t.Parallel()

	svc, _ := newSSOService(t)
	for _, name := range []string{"okta", "corp-adfs", "azure"} {
		if err := svc.Register(&fakeBroker{name: name}); err != nil {
			t.Fatalf("Register(%s) error: %v", name, err)
		}
	}

	got := svc.Providers()
	want := []string{"azure", "corp-adfs", "okta"}
	if len(got) != len(want) {
		t.Fatalf("Providers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Providers()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func TestAuthorizeURL_Dispatch(t *testing.T) {
	t.Parallel()

	svc, _ := newSSOService(t)
	if err := svc.Register(&fakeBroker{name: "okta"}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	ctx := context.Background()

	url, state, err := svc.AuthorizeURL(ctx, "okta", "")
	if err != nil {
		t.Fatalf("AuthorizeURL() error: %v", err)
	}
	if state == "" || !strings.Contains(url, "state="+state) {
		t.Errorf("AuthorizeURL() = (%q, %q), want the used state inside the URL", url, state)
	}

	if _, _, err := svc.AuthorizeURL(ctx, "github", ""); !fault.IsKind(err, fault.NotFound) {
		t.Errorf("AuthorizeURL() unknown provider error = %v, want NotFound", err)
	}
}

func TestRedeem_RecordsExchangeMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	svc, _ := newSSOService(t, WithSSOMetrics(m))
	if err := svc.Register(&fakeBroker{name: "okta", user: oktaUser("sub-1")}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := svc.Register(&fakeBroker{name: "adfs", err: fault.New(fault.Upstream, "idp down")}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	ctx := context.Background()

	got, err := svc.Redeem(ctx, "okta", "code-123")
	if err != nil {
		t.Fatalf("Redeem() error: %v", err)
	}
	if got.ExternalID != "sub-1" {
		t.Errorf("Redeem().ExternalID = %s, want sub-1", got.ExternalID)
	}

	if _, err := svc.Redeem(ctx, "adfs", "code-456"); !fault.IsKind(err, fault.Upstream) {
		t.Errorf("Redeem() broker failure error = %v, want Upstream", err)
	}

	if got := testutil.ToFloat64(m.SSOExchanges.WithLabelValues("okta", "success")); got != 1 {
		t.Errorf("sso_exchanges_total{okta,success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SSOExchanges.WithLabelValues("adfs", "failure")); got != 1 {
		t.Errorf("sso_exchanges_total{adfs,failure} = %v, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// Login resolution
// ---------------------------------------------------------------------------

func TestLogin_ResolvesLinkedUser(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, users := newSSOService(t, WithSSOClock(func() time.Time { return t0 }))
	if err := svc.Register(&fakeBroker{name: "okta", user: oktaUser("sub-1")}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	ctx := context.Background()

	seedUser(t, users, "alice", "user")
	if _, err := users.LinkChannel(ctx, "alice", "okta", "sub-1"); err != nil {
		t.Fatalf("LinkChannel() error: %v", err)
	}

	result, err := svc.Login(ctx, "okta", "code-123")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if result.User.ID != "alice" {
		t.Errorf("Login().User.ID = %s, want alice", result.User.ID)
	}
	if result.External.ExternalID != "sub-1" {
		t.Errorf("Login().External.ExternalID = %s, want sub-1", result.External.ExternalID)
	}
	if result.User.PasswordHash != "" || result.User.Salt != "" {
		t.Error("Login() returned credential material, want redacted user")
	}

	stored, err := users.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !stored.LastLoginAt.Equal(t0) {
		t.Errorf("LastLoginAt = %v, want %v", stored.LastLoginAt, t0)
	}
}

func TestLogin_UnlinkedIdentity(t *testing.T) {
	t.Parallel()

	svc, _ := newSSOService(t)
	if err := svc.Register(&fakeBroker{name: "okta", user: oktaUser("sub-9")}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	_, err := svc.Login(context.Background(), "okta", "code-123")
	if !fault.IsKind(err, fault.NotFound) {
		t.Errorf("Login() unlinked error = %v, want NotFound", err)
	}
}

func TestLogin_DeactivatedUser(t *testing.T) {
	t.Parallel()

	svc, users := newSSOService(t)
	if err := svc.Register(&fakeBroker{name: "okta", user: oktaUser("sub-1")}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	ctx := context.Background()

	user := seedUser(t, users, "alice", "user")
	if _, err := users.LinkChannel(ctx, "alice", "okta", "sub-1"); err != nil {
		t.Fatalf("LinkChannel() error: %v", err)
	}
	user.IsActive = false
	if err := users.Update(ctx, user); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	_, err := svc.Login(ctx, "okta", "code-123")
	if !fault.IsKind(err, fault.PermissionDenied) {
		t.Errorf("Login() deactivated error = %v, want PermissionDenied", err)
	}
}

func TestLogin_AuditsOutcomes(t *testing.T) {
	t.Parallel()

	ledger, _ := newTestLedger(t)
	svc, users := newSSOService(t, WithSSOAudit(ledger))
	if err := svc.Register(&fakeBroker{name: "okta", user: oktaUser("sub-1")}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	ctx := context.Background()

	// One denied attempt (nothing linked), then a link and an allowed one.
	if _, err := svc.Login(ctx, "okta", "code-123"); !fault.IsKind(err, fault.NotFound) {
		t.Fatalf("Login() unlinked error = %v, want NotFound", err)
	}
	seedUser(t, users, "alice", "user")
	if _, err := users.LinkChannel(ctx, "alice", "okta", "sub-1"); err != nil {
		t.Fatalf("LinkChannel() error: %v", err)
	}
	if _, err := svc.Login(ctx, "okta", "code-123"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	entries, err := ledger.Read(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ledger Read() error: %v", err)
	}
	var deny, allow *audit.Entry
	for i := range entries {
		if entries[i].Action != "auth.sso" {
			continue
		}
		switch entries[i].Decision {
		case audit.DecisionDeny:
			deny = &entries[i]
		case audit.DecisionAllow:
			allow = &entries[i]
		}
	}
	if deny == nil || allow == nil {
		t.Fatalf("ledger entries missing auth.sso outcomes: deny=%v allow=%v", deny, allow)
	}
	if deny.Resource != "okta:sub-1" || deny.Channel != "okta" {
		t.Errorf("deny entry = {resource %s, channel %s}, want okta:sub-1 on channel okta", deny.Resource, deny.Channel)
	}
	if allow.Resource != "user:alice" || allow.Channel != "okta" {
		t.Errorf("allow entry = {resource %s, channel %s}, want user:alice on channel okta", allow.Resource, allow.Channel)
	}
}
