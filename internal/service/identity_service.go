package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warden-platform/warden-core/internal/domain/audit"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/domain/rbac"
	"github.com/warden-platform/warden-core/internal/metrics"
)

// IdentityService manages user accounts: creation, password authentication,
// channel-identity mapping, role assignment, and deactivation. Credential
// material never leaves the service; every returned user is redacted.
type IdentityService struct {
	users   identity.Store
	roles   rbac.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	rec     AuditRecorder
	inv     Invalidator
	persist PersistHook
	now     func() time.Time
}

// IdentityOption configures an IdentityService.
type IdentityOption func(*IdentityService)

// WithIdentityClock overrides the time source.
func WithIdentityClock(now func() time.Time) IdentityOption {
	return func(s *IdentityService) { s.now = now }
}

// WithIdentityMetrics wires the auth-attempt counters. A nil *Metrics
// disables recording.
func WithIdentityMetrics(m *metrics.Metrics) IdentityOption {
	return func(s *IdentityService) { s.metrics = m }
}

// WithIdentityAudit records account mutations and authentication outcomes
// to the ledger.
func WithIdentityAudit(rec AuditRecorder) IdentityOption {
	return func(s *IdentityService) { s.rec = rec }
}

// WithIdentityInvalidator drops cached authorization results when a user's
// role or active flag changes.
func WithIdentityInvalidator(inv Invalidator) IdentityOption {
	return func(s *IdentityService) { s.inv = inv }
}

// WithIdentityPersist runs after every successful mutation.
func WithIdentityPersist(hook PersistHook) IdentityOption {
	return func(s *IdentityService) { s.persist = hook }
}

// NewIdentityService creates an IdentityService over the given stores.
func NewIdentityService(users identity.Store, roles rbac.Store, logger *slog.Logger, opts ...IdentityOption) *IdentityService {
	s := &IdentityService{
		users:  users,
		roles:  roles,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUserInput holds the input for creating a user.
type CreateUserInput struct {
	Username string            `json:"username"`
	Email    string            `json:"email"`
	Password string            `json:"password"`
	RoleName string            `json:"role_name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Create registers a new user with a freshly salted scrypt credential. The
// role must exist; the username must be unused.
func (s *IdentityService) Create(ctx context.Context, input CreateUserInput) (*identity.User, error) {
	if input.Username == "" {
		return nil, fault.New(fault.InvalidArgument, "username is required")
	}
	if input.Password == "" {
		return nil, fault.New(fault.InvalidArgument, "password is required")
	}
	if input.RoleName == "" {
		return nil, fault.New(fault.InvalidArgument, "role name is required")
	}
	if _, err := s.roles.Get(ctx, input.RoleName); err != nil {
		return nil, err
	}

	hash, salt, err := identity.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	user := &identity.User{
		ID:           uuid.New().String(),
		Username:     input.Username,
		Email:        input.Email,
		RoleName:     input.RoleName,
		PasswordHash: hash,
		Salt:         salt,
		HashScheme:   identity.SchemeScrypt,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
		Channels:     map[string]string{},
		Metadata:     metadata,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created", "id", user.ID, "username", user.Username, "role", user.RoleName)
	s.record(ctx, "user.create", audit.ActorSystem, "user:"+user.Username, audit.DecisionAllow,
		WithDetail("role "+user.RoleName))
	s.persisted(ctx)

	return user.Redacted(), nil
}

// Authenticate verifies a username/password pair. Unknown usernames,
// deactivated accounts, and wrong passwords are indistinguishable: every
// failure costs one key derivation and returns the same error.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (*identity.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil || !user.IsActive {
		identity.DummyVerify(password)
		return nil, s.authFailed(ctx, username)
	}

	if !identity.VerifyPassword(user, password) {
		return nil, s.authFailed(ctx, username)
	}

	user.LastLoginAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		// Login stamp only; authentication itself already succeeded.
		s.logger.Warn("failed to record login time", "username", username, "error", err)
	}

	if s.metrics != nil {
		s.metrics.AuthAttempts.WithLabelValues("success").Inc()
	}
	s.record(ctx, "auth.login", audit.ActorUser, "user:"+username, audit.DecisionAllow)

	return user.Redacted(), nil
}

// authFailed records one failed authentication and returns the uniform
// credential error.
func (s *IdentityService) authFailed(ctx context.Context, username string) error {
	if s.metrics != nil {
		s.metrics.AuthAttempts.WithLabelValues("failure").Inc()
	}
	s.record(ctx, "auth.login", audit.ActorUser, "user:"+username, audit.DecisionDeny,
		WithDetail("invalid credentials"))
	return fault.New(fault.PermissionDenied, "invalid credentials")
}

// Get returns a user by id, redacted.
func (s *IdentityService) Get(ctx context.Context, id string) (*identity.User, error) {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Redacted(), nil
}

// GetByUsername returns a user by username, redacted.
func (s *IdentityService) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return user.Redacted(), nil
}

// GetByChannel resolves a channel identity to its owning user, redacted.
func (s *IdentityService) GetByChannel(ctx context.Context, channel, externalID string) (*identity.User, error) {
	user, err := s.users.GetByChannel(ctx, channel, externalID)
	if err != nil {
		return nil, err
	}
	return user.Redacted(), nil
}

// LinkChannel maps a channel external id to the user. The mapping is
// exclusive: linking an id already owned by another user moves it, and the
// previous owner's id is returned so the transfer is auditable.
func (s *IdentityService) LinkChannel(ctx context.Context, userID, channel, externalID string) (string, error) {
	previousOwner, err := s.users.LinkChannel(ctx, userID, channel, externalID)
	if err != nil {
		return "", err
	}

	detail := "linked " + identity.ChannelKey(channel, externalID)
	if previousOwner != "" {
		detail += " (moved from user " + previousOwner + ")"
		s.logger.Info("channel mapping moved",
			"channel", channel, "user", userID, "previous_owner", previousOwner)
	}
	s.record(ctx, "user.link_channel", audit.ActorSystem, "user:"+userID, audit.DecisionAllow,
		WithDetail(detail), WithEntryChannel(channel))
	s.persisted(ctx)

	return previousOwner, nil
}

// List returns all users in creation order, redacted.
func (s *IdentityService) List(ctx context.Context) ([]*identity.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*identity.User, len(users))
	for i, u := range users {
		out[i] = u.Redacted()
	}
	return out, nil
}

// ChangeRole assigns a different role to the user. The role must exist.
func (s *IdentityService) ChangeRole(ctx context.Context, userID, roleName string) error {
	if _, err := s.roles.Get(ctx, roleName); err != nil {
		return err
	}
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}

	previous := user.RoleName
	user.RoleName = roleName
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.invalidated()
	s.logger.Info("user role changed", "id", userID, "from", previous, "to", roleName)
	s.record(ctx, "user.change_role", audit.ActorSystem, "user:"+user.Username, audit.DecisionAllow,
		WithDetail(previous+" -> "+roleName))
	s.persisted(ctx)

	return nil
}

// Deactivate disables the account. Deactivated users fail authentication
// and every authorization check.
func (s *IdentityService) Deactivate(ctx context.Context, userID string) error {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}

	user.IsActive = false
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.invalidated()
	s.logger.Info("user deactivated", "id", userID, "username", user.Username)
	s.record(ctx, "user.deactivate", audit.ActorSystem, "user:"+user.Username, audit.DecisionAllow)
	s.persisted(ctx)

	return nil
}

// record appends a ledger entry when auditing is wired. Account operations
// succeed even when their audit record cannot be written; the failure is
// surfaced in the log instead.
func (s *IdentityService) record(ctx context.Context, action string, actor audit.Actor, resource string, decision audit.Decision, opts ...EntryOption) {
	if s.rec == nil {
		return
	}
	if _, err := s.rec.Append(ctx, action, actor, resource, decision, opts...); err != nil {
		s.logger.Error("failed to audit identity operation", "action", action, "error", err)
	}
}

func (s *IdentityService) invalidated() {
	if s.inv != nil {
		s.inv.Invalidate()
	}
}

func (s *IdentityService) persisted(ctx context.Context) {
	if s.persist != nil {
		s.persist(ctx)
	}
}
