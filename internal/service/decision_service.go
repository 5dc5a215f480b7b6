package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warden-platform/warden-core/internal/domain/audit"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/domain/rbac"
	"github.com/warden-platform/warden-core/internal/domain/threat"
	"github.com/warden-platform/warden-core/internal/metrics"
)

// DecisionHook is an extension point run after the permission check allows a
// request: the external policy engine, canary checks, egress filters. A hook
// may downgrade the decision to deny or ask_user with a reason; allow leaves
// it untouched. Hooks never upgrade a deny. A hook error aborts the request.
type DecisionHook interface {
	// Name identifies the hook in audit entries and logs.
	Name() string

	// Review inspects an already-permitted request.
	Review(ctx context.Context, user *identity.User, req AuthorizeRequest) (audit.Decision, string, error)
}

// AuthorizeRequest is one ingress action awaiting a decision. Exactly one
// credential must be set: a raw API key, a platform user id, or a channel
// identity (Channel plus ExternalID). Channel doubles as the audit entry's
// channel label.
type AuthorizeRequest struct {
	APIKey     string `json:"-"`
	UserID     string `json:"user_id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`

	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Permission string         `json:"permission"`
	Actor      audit.Actor    `json:"actor,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	DataBytes  int            `json:"data_bytes,omitempty"`
	Source     string         `json:"source,omitempty"`
	Channel    string         `json:"channel,omitempty"`
}

// Authorization is the outcome of a decided request. User is the resolved,
// redacted identity; Threat carries the highest-severity event the request
// tripped, if any.
type Authorization struct {
	User     *identity.User `json:"user"`
	Decision audit.Decision `json:"decision"`
	Reason   string         `json:"reason,omitempty"`
	Threat   *threat.Event  `json:"threat,omitempty"`
}

// DecisionService is the core's decision API: it resolves the credential,
// applies the block-list veto, runs the permission check and the registered
// hooks, records the attempt with the threat detector, and seals the outcome
// into the ledger. Unlike registry auditing, a ledger failure here fails the
// request: an unrecorded decision is no decision.
type DecisionService struct {
	users   identity.Store
	keys    *KeyService
	access  *AccessService
	threats *ThreatService
	rec     AuditRecorder
	logger  *slog.Logger
	metrics *metrics.Metrics
	hooks   []DecisionHook
}

// DecisionOption configures DecisionService.
type DecisionOption func(*DecisionService)

// WithDecisionMetrics attaches Prometheus collectors.
func WithDecisionMetrics(m *metrics.Metrics) DecisionOption {
	return func(s *DecisionService) { s.metrics = m }
}

// WithDecisionHooks appends review hooks, run in the given order after the
// permission check.
func WithDecisionHooks(hooks ...DecisionHook) DecisionOption {
	return func(s *DecisionService) { s.hooks = append(s.hooks, hooks...) }
}

// NewDecisionService wires the decision pipeline. The recorder is mandatory
// in spirit: decisions append to it with failures propagated.
func NewDecisionService(
	users identity.Store,
	keys *KeyService,
	access *AccessService,
	threats *ThreatService,
	rec AuditRecorder,
	logger *slog.Logger,
	opts ...DecisionOption,
) *DecisionService {
	s := &DecisionService{
		users:   users,
		keys:    keys,
		access:  access,
		threats: threats,
		rec:     rec,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize decides one request. The error return is reserved for requests
// that never reach a decision: malformed input, unresolvable credentials,
// blocked sources (kind Blocked), hook failures, and ledger failures. Every
// decided or rejected request is sealed into the ledger and metered.
func (s *DecisionService) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	ctx, span := tracer.Start(ctx, "decision.authorize", trace.WithAttributes(
		attribute.String("warden.action", req.Action),
		attribute.String("warden.permission", req.Permission),
	))
	defer span.End()

	auth, err := s.authorize(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fault.KindOf(err).String())
		return nil, err
	}
	span.SetAttributes(attribute.String("warden.decision", string(auth.Decision)))
	return auth, nil
}

func (s *DecisionService) authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	if req.Action == "" {
		return nil, fault.New(fault.InvalidArgument, "action is required")
	}
	perm, ok := rbac.ParsePermission(req.Permission)
	if !ok {
		return nil, fault.Newf(fault.InvalidArgument, "unknown permission %q", req.Permission)
	}
	if err := validateCredential(req); err != nil {
		return nil, err
	}

	// Block-list veto before any lookups: blocked sources get nothing.
	if req.Source != "" && s.threats.IsBlocked(req.Source) {
		if err := s.seal(ctx, req, audit.DecisionDeny, "source is blocked", ""); err != nil {
			return nil, err
		}
		return nil, fault.Newf(fault.Blocked, "source %s is blocked", req.Source)
	}

	user, err := s.resolve(ctx, req)
	if err != nil {
		if req.Source != "" {
			s.threats.CheckAuth(ctx, req.Source, "", false)
		}
		if serr := s.seal(ctx, req, audit.DecisionDeny, "credential rejected", ""); serr != nil {
			return nil, serr
		}
		return nil, err
	}
	if req.Source != "" {
		s.threats.CheckAuth(ctx, req.Source, user.ID, true)
	}

	ev := s.observeRequest(ctx, user.ID, req)

	decision, reason, policy := audit.DecisionAllow, "", ""
	switch {
	case !user.IsActive:
		decision, reason = audit.DecisionDeny, "user account is deactivated"
	default:
		allowed, err := s.access.Check(ctx, user.ID, perm)
		if err != nil {
			return nil, err
		}
		if !allowed {
			decision = audit.DecisionDeny
			reason = fmt.Sprintf("role %s lacks %s", user.RoleName, perm.Name())
		}
	}

	if decision == audit.DecisionAllow {
		decision, reason, policy, err = s.review(ctx, user, req)
		if err != nil {
			return nil, err
		}
	}

	if err := s.seal(ctx, req, decision, reason, policy); err != nil {
		return nil, err
	}

	s.logger.Debug("request decided",
		"action", req.Action,
		"user_id", user.ID,
		"decision", decision,
		"reason", reason,
	)
	return &Authorization{
		User:     user.Redacted(),
		Decision: decision,
		Reason:   reason,
		Threat:   ev,
	}, nil
}

// validateCredential enforces exactly one credential.
func validateCredential(req AuthorizeRequest) error {
	n := 0
	if req.APIKey != "" {
		n++
	}
	if req.UserID != "" {
		n++
	}
	if req.ExternalID != "" {
		if req.Channel == "" {
			return fault.New(fault.InvalidArgument, "channel identity requires a channel name")
		}
		n++
	}
	if n != 1 {
		return fault.Newf(fault.InvalidArgument, "exactly one credential is required, got %d", n)
	}
	return nil
}

// resolve maps the request credential onto a user record.
func (s *DecisionService) resolve(ctx context.Context, req AuthorizeRequest) (*identity.User, error) {
	switch {
	case req.APIKey != "":
		key, err := s.keys.Validate(ctx, req.APIKey)
		if err != nil {
			return nil, err
		}
		return s.users.Get(ctx, key.UserID)
	case req.UserID != "":
		return s.users.Get(ctx, req.UserID)
	default:
		return s.users.GetByChannel(ctx, req.Channel, req.ExternalID)
	}
}

// observeRequest feeds the detector rules and returns the highest-severity
// event the request tripped. Events record; enforcement arrives through the
// block list on subsequent requests.
func (s *DecisionService) observeRequest(ctx context.Context, userID string, req AuthorizeRequest) *threat.Event {
	var top *threat.Event
	keep := func(ev *threat.Event) {
		if ev != nil && (top == nil || ev.Level.Rank() > top.Level.Rank()) {
			top = ev
		}
	}

	keep(s.threats.CheckRate(ctx, userID))
	if req.Tool != "" {
		keep(s.threats.CheckTool(ctx, userID, req.Tool, req.Args))
	}
	if req.DataBytes > 0 {
		keep(s.threats.CheckData(ctx, userID, req.Resource, req.DataBytes))
	}
	return top
}

// review runs the registered hooks in order; the first non-allow wins.
func (s *DecisionService) review(ctx context.Context, user *identity.User, req AuthorizeRequest) (audit.Decision, string, string, error) {
	for _, hook := range s.hooks {
		decision, reason, err := hook.Review(ctx, user, req)
		if err != nil {
			s.logger.Error("decision hook failed",
				"hook", hook.Name(),
				"action", req.Action,
				"error", err,
			)
			return "", "", "", fault.Wrap(fault.Upstream, "decision hook "+hook.Name(), err)
		}
		if decision != audit.DecisionAllow {
			return decision, reason, hook.Name(), nil
		}
	}
	return audit.DecisionAllow, "", "", nil
}

// seal appends the outcome to the ledger and meters it. Append failures
// propagate: callers treat an unsealed decision as undecided.
func (s *DecisionService) seal(ctx context.Context, req AuthorizeRequest, decision audit.Decision, detail, policy string) error {
	actor := req.Actor
	if actor == "" {
		actor = audit.ActorUser
	}

	var opts []EntryOption
	if policy != "" {
		opts = append(opts, WithPolicy(policy))
	}
	if detail != "" {
		opts = append(opts, WithDetail(detail))
	}
	if req.Channel != "" {
		opts = append(opts, WithEntryChannel(req.Channel))
	}

	if _, err := s.rec.Append(ctx, req.Action, actor, req.Resource, decision, opts...); err != nil {
		s.logger.Error("failed to seal decision",
			"action", req.Action,
			"decision", decision,
			"error", err,
		)
		return err
	}

	if s.metrics != nil {
		s.metrics.DecisionsTotal.WithLabelValues(string(decision)).Inc()
	}
	return nil
}
