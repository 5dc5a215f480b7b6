package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warden-platform/warden-core/internal/domain/audit"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/domain/sso"
	"github.com/warden-platform/warden-core/internal/metrics"
)

// SSOService dispatches to the configured identity-provider brokers and maps
// redeemed external identities onto platform users through the channel index,
// with the provider name as the channel. Linking itself goes through the
// identity service like any other channel.
type SSOService struct {
	users   identity.Store
	logger  *slog.Logger
	rec     AuditRecorder
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	brokers map[string]sso.Broker
}

// SSOOption configures SSOService.
type SSOOption func(*SSOService)

// WithSSOClock overrides the time source. Used in tests.
func WithSSOClock(now func() time.Time) SSOOption {
	return func(s *SSOService) { s.now = now }
}

// WithSSOAudit attaches a ledger for login records.
func WithSSOAudit(rec AuditRecorder) SSOOption {
	return func(s *SSOService) { s.rec = rec }
}

// WithSSOMetrics attaches Prometheus collectors.
func WithSSOMetrics(m *metrics.Metrics) SSOOption {
	return func(s *SSOService) { s.metrics = m }
}

// NewSSOService creates an SSOService with an empty broker registry.
func NewSSOService(users identity.Store, logger *slog.Logger, opts ...SSOOption) *SSOService {
	s := &SSOService{
		users:   users,
		logger:  logger,
		now:     time.Now,
		brokers: make(map[string]sso.Broker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a broker under its provider name.
func (s *SSOService) Register(broker sso.Broker) error {
	name := broker.Provider()
	if name == "" {
		return fault.New(fault.InvalidArgument, "sso provider name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.brokers[name]; ok {
		return fault.Newf(fault.AlreadyExists, "sso provider %s is already registered", name)
	}
	s.brokers[name] = broker

	s.logger.Info("sso provider registered", "provider", name)
	return nil
}

// Providers returns the registered provider names, sorted.
func (s *SSOService) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.brokers))
	for name := range s.brokers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AuthorizeURL returns the provider's login URL and the CSRF state the caller
// must persist for the callback comparison.
func (s *SSOService) AuthorizeURL(ctx context.Context, provider, state string) (string, string, error) {
	broker, err := s.broker(provider)
	if err != nil {
		return "", "", err
	}
	return broker.AuthorizeURL(ctx, state)
}

// Redeem processes a provider callback payload into the normalized external
// user. Exchange outcomes are metered per provider, and the provider round
// trips run inside a span.
func (s *SSOService) Redeem(ctx context.Context, provider, payload string) (*sso.User, error) {
	broker, err := s.broker(provider)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "sso.redeem", trace.WithAttributes(
		attribute.String("warden.sso.provider", provider),
	))
	defer span.End()

	user, err := broker.Redeem(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fault.KindOf(err).String())
		s.exchanged(provider, "failure")
		s.logger.Warn("sso redemption failed", "provider", provider, "error", err)
		return nil, err
	}
	s.exchanged(provider, "success")
	return user, nil
}

// LoginResult carries the platform user a login resolved to alongside the
// external identity that produced it.
type LoginResult struct {
	User     *identity.User `json:"user"`
	External *sso.User      `json:"external"`
}

// Login completes an SSO callback end to end: redeem the payload, then
// resolve the external subject through the channel index. An identity nobody
// has linked resolves to NotFound; a deactivated account is denied. The
// resolution outcome is audited either way.
func (s *SSOService) Login(ctx context.Context, provider, payload string) (*LoginResult, error) {
	external, err := s.Redeem(ctx, provider, payload)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByChannel(ctx, provider, external.ExternalID)
	if err != nil {
		s.record(ctx, provider, provider+":"+external.ExternalID, audit.DecisionDeny,
			WithDetail("no linked user"))
		return nil, fault.Newf(fault.NotFound, "no user linked to %s identity %s", provider, external.ExternalID)
	}
	if !user.IsActive {
		s.record(ctx, provider, "user:"+user.Username, audit.DecisionDeny,
			WithDetail("account deactivated"))
		return nil, fault.New(fault.PermissionDenied, "user account is deactivated")
	}

	user.LastLoginAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		// Login stamp only; the identity already resolved.
		s.logger.Warn("failed to record login time", "username", user.Username, "error", err)
	}

	s.logger.Info("sso login",
		"provider", provider,
		"username", user.Username,
	)
	s.record(ctx, provider, "user:"+user.Username, audit.DecisionAllow)

	return &LoginResult{User: user.Redacted(), External: external}, nil
}

// broker returns the registered broker for the provider.
func (s *SSOService) broker(provider string) (sso.Broker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	broker, ok := s.brokers[provider]
	if !ok {
		return nil, fault.Newf(fault.NotFound, "sso provider %q is not configured", provider)
	}
	return broker, nil
}

func (s *SSOService) exchanged(provider, result string) {
	if s.metrics != nil {
		s.metrics.SSOExchanges.WithLabelValues(provider, result).Inc()
	}
}

func (s *SSOService) record(ctx context.Context, provider, resource string, decision audit.Decision, opts ...EntryOption) {
	if s.rec == nil {
		return
	}
	opts = append(opts, WithEntryChannel(provider))
	if _, err := s.rec.Append(ctx, "auth.sso", audit.ActorUser, resource, decision, opts...); err != nil {
		s.logger.Error("failed to audit sso login",
			"provider", provider,
			"error", err,
		)
	}
}
