package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warden-platform/warden-core/internal/domain/apikey"
	"github.com/warden-platform/warden-core/internal/domain/audit"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/identity"
)

// KeyService issues and validates opaque API keys. Raw tokens leave the
// service exactly once, at issuance; storage and lookups work on the SHA-256
// token hash.
type KeyService struct {
	keys    apikey.Store
	users   identity.Store
	logger  *slog.Logger
	rec     AuditRecorder
	persist PersistHook
	now     func() time.Time
}

// KeyOption configures KeyService.
type KeyOption func(*KeyService)

// WithKeyClock overrides the time source. Used in tests.
func WithKeyClock(now func() time.Time) KeyOption {
	return func(s *KeyService) { s.now = now }
}

// WithKeyAudit attaches a ledger for issuance and revocation records.
func WithKeyAudit(rec AuditRecorder) KeyOption {
	return func(s *KeyService) { s.rec = rec }
}

// WithKeyPersist attaches a hook run after successful mutations.
func WithKeyPersist(hook PersistHook) KeyOption {
	return func(s *KeyService) { s.persist = hook }
}

// NewKeyService creates a KeyService over the given stores.
func NewKeyService(keys apikey.Store, users identity.Store, logger *slog.Logger, opts ...KeyOption) *KeyService {
	s := &KeyService{
		keys:   keys,
		users:  users,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateKeyInput carries the fields for one key issuance. TTLDays < 0
// applies the default lifetime; zero issues a key that is already expired.
type GenerateKeyInput struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	TTLDays int    `json:"ttl_days"`
}

// GenerateKeyResult returns the raw token alongside the stored metadata.
// The raw token is not recoverable afterwards.
type GenerateKeyResult struct {
	RawKey string     `json:"raw_key"`
	Key    apikey.Key `json:"key"`
}

// Generate issues a new API key for the user.
func (s *KeyService) Generate(ctx context.Context, input GenerateKeyInput) (*GenerateKeyResult, error) {
	if input.UserID == "" {
		return nil, fault.New(fault.InvalidArgument, "user id is required")
	}
	if input.Name == "" {
		return nil, fault.New(fault.InvalidArgument, "key name is required")
	}
	if _, err := s.users.Get(ctx, input.UserID); err != nil {
		return nil, err
	}

	ttlDays := input.TTLDays
	if ttlDays < 0 {
		ttlDays = apikey.DefaultTTLDays
	}

	raw, err := apikey.NewRawKey()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	key := apikey.Key{
		ID:        uuid.New().String(),
		UserID:    input.UserID,
		Name:      input.Name,
		CreatedAt: now,
		ExpiresAt: now.AddDate(0, 0, ttlDays).Unix(),
	}
	if err := s.keys.Put(ctx, apikey.HashKey(raw), &key); err != nil {
		return nil, err
	}

	s.logger.Info("api key issued",
		"key_id", key.ID,
		"user_id", key.UserID,
		"name", key.Name,
		"expires_at", key.ExpiresAt,
	)
	s.record(ctx, "key.generate", "user:"+input.UserID, WithDetail("key "+key.Name))
	s.persisted(ctx)
	return &GenerateKeyResult{RawKey: raw, Key: key}, nil
}

// Validate resolves a raw token to its stored record. Unknown tokens report
// NotFound, expired tokens Expired. Successful validation advances the
// record's last-used stamp best-effort.
func (s *KeyService) Validate(ctx context.Context, raw string) (*apikey.Key, error) {
	if !apikey.WellFormed(raw) {
		return nil, fault.New(fault.NotFound, "api key not found")
	}

	tokenHash := apikey.HashKey(raw)
	key, err := s.keys.Get(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if key.IsExpired(now) {
		return nil, fault.New(fault.Expired, "api key expired")
	}

	// Usage stamp only; validation itself already succeeded.
	if err := s.keys.Touch(ctx, tokenHash, now.Unix()); err != nil {
		s.logger.Warn("failed to advance key last-used stamp",
			"key_id", key.ID,
			"error", err,
		)
	} else {
		key.LastUsed = now.Unix()
	}
	return key, nil
}

// Revoke deletes the record for a raw token. It reports whether a record
// existed; revoking an unknown or already-revoked token is a no-op.
func (s *KeyService) Revoke(ctx context.Context, raw string) (bool, error) {
	tokenHash := apikey.HashKey(raw)

	key, err := s.keys.Get(ctx, tokenHash)
	if err != nil {
		if fault.IsKind(err, fault.NotFound) {
			return false, nil
		}
		return false, err
	}

	existed, err := s.keys.Remove(ctx, tokenHash)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}

	s.logger.Info("api key revoked",
		"key_id", key.ID,
		"user_id", key.UserID,
	)
	s.record(ctx, "key.revoke", "user:"+key.UserID, WithDetail("key "+key.Name))
	s.persisted(ctx)
	return true, nil
}

// List returns the user's key metadata, oldest first. Neither raw tokens nor
// token hashes appear in the result.
func (s *KeyService) List(ctx context.Context, userID string) ([]*apikey.Key, error) {
	return s.keys.ListByUser(ctx, userID)
}

func (s *KeyService) record(ctx context.Context, action, resource string, opts ...EntryOption) {
	if s.rec == nil {
		return
	}
	if _, err := s.rec.Append(ctx, action, audit.ActorSystem, resource, audit.DecisionAllow, opts...); err != nil {
		s.logger.Error("failed to audit key operation",
			"action", action,
			"error", err,
		)
	}
}

func (s *KeyService) persisted(ctx context.Context) {
	if s.persist != nil {
		s.persist(ctx)
	}
}
