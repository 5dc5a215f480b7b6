package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warden-platform/warden-core/internal/domain/audit"
	"github.com/warden-platform/warden-core/internal/domain/compliance"
	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/metrics"
)

// RecentReader is implemented by journals that keep an in-memory cache of
// recent entries. The ledger uses it to serve Recent without disk reads.
type RecentReader interface {
	Recent(n int) []audit.Entry
}

// LedgerService is the hash-chained audit ledger. Every append builds an
// entry from the current chain tip, seals it, writes it to the journal, and
// only then advances the tip; hash computation, journal write, and pointer
// advance happen inside one critical section, so concurrent appends always
// produce a single total order. A failed write leaves the tip untouched.
type LedgerService struct {
	journal audit.Journal
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	prevHash string
}

// LedgerOption configures a LedgerService.
type LedgerOption func(*LedgerService)

// WithLedgerClock overrides the time source. Tests use this to pin entry
// timestamps and exercise day rollovers.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

// WithLedgerMetrics wires append and chain-error counters. A nil *Metrics
// disables recording.
func WithLedgerMetrics(m *metrics.Metrics) LedgerOption {
	return func(s *LedgerService) { s.metrics = m }
}

// NewLedgerService recovers the chain tip from the journal's newest entry
// and returns a ledger ready to append. An empty journal starts the chain
// at the genesis anchor.
func NewLedgerService(ctx context.Context, journal audit.Journal, logger *slog.Logger, opts ...LedgerOption) (*LedgerService, error) {
	s := &LedgerService{
		journal:  journal,
		logger:   logger,
		now:      time.Now,
		prevHash: audit.GenesisHash,
	}
	for _, opt := range opts {
		opt(s)
	}

	last, ok, err := journal.LastEntry(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover chain tip: %w", err)
	}
	if ok {
		s.prevHash = last.EntryHash
		logger.Info("audit ledger initialized", "chain_tip", last.EntryHash, "tip_timestamp", last.Timestamp)
	} else {
		logger.Info("audit ledger initialized", "chain_tip", audit.GenesisHash)
	}

	return s, nil
}

// EntryOption sets an optional field on an entry under construction.
type EntryOption func(*audit.Entry)

// WithPolicy records the rule that produced the decision.
func WithPolicy(name string) EntryOption {
	return func(e *audit.Entry) { e.Policy = name }
}

// WithDetail attaches free-form context to the entry.
func WithDetail(detail string) EntryOption {
	return func(e *audit.Entry) { e.Detail = detail }
}

// WithEntryChannel records the ingress channel the action arrived on.
func WithEntryChannel(channel string) EntryOption {
	return func(e *audit.Entry) { e.Channel = channel }
}

// Append constructs an entry at the current chain tip, seals it, flushes it
// to the day journal, and advances the tip. On any failure the tip does not
// move and the caller may retry. The returned entry is the sealed record as
// written.
func (s *LedgerService) Append(ctx context.Context, action string, actor audit.Actor, resource string, decision audit.Decision, opts ...EntryOption) (audit.Entry, error) {
	if action == "" {
		return audit.Entry{}, fault.New(fault.InvalidArgument, "audit append: action is required")
	}
	if !actor.IsValid() {
		return audit.Entry{}, fault.Newf(fault.InvalidArgument, "audit append: unknown actor %q", actor)
	}
	if !decision.IsValid() {
		return audit.Entry{}, fault.Newf(fault.InvalidArgument, "audit append: unknown decision %q", decision)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := audit.Entry{
		Timestamp: audit.FormatTimestamp(s.now()),
		Action:    action,
		Actor:     actor,
		Resource:  resource,
		Decision:  decision,
		PrevHash:  s.prevHash,
	}
	for _, opt := range opts {
		opt(&e)
	}

	if err := e.Seal(); err != nil {
		return audit.Entry{}, fmt.Errorf("seal audit entry: %w", err)
	}

	if err := s.journal.Append(ctx, e); err != nil {
		s.logger.Error("audit append failed", "action", action, "error", err)
		return audit.Entry{}, fmt.Errorf("append audit entry: %w", err)
	}

	s.prevHash = e.EntryHash
	if s.metrics != nil {
		s.metrics.AuditAppends.Inc()
	}
	s.logger.Debug("audit entry recorded",
		"action", action, "actor", actor, "decision", decision, "resource", resource)

	return e, nil
}

// Read returns the entries recorded on the given UTC date in insertion
// order. A zero date means today.
func (s *LedgerService) Read(ctx context.Context, date time.Time) ([]audit.Entry, error) {
	if date.IsZero() {
		date = s.now()
	}
	return s.journal.ReadDay(ctx, date)
}

// VerifyDay re-reads one day's journal from disk and verifies it. A zero
// date means today. Days after the first anchor on their own first entry's
// prev_hash, since the chain continues across day boundaries; the genesis
// anchor applies only where the day actually starts the chain.
func (s *LedgerService) VerifyDay(ctx context.Context, date time.Time) (bool, string, error) {
	entries, err := s.Read(ctx, date)
	if err != nil {
		return false, "", fmt.Errorf("read journal for verification: %w", err)
	}

	ok, detail := audit.VerifySegment(entries)
	if !ok {
		if s.metrics != nil {
			s.metrics.AuditChainErrors.Inc()
		}
		s.logger.Warn("audit chain verification failed", "detail", detail)
	}
	return ok, detail, nil
}

// VerifyChain verifies today's journal. It satisfies the verifier contract
// the compliance reporter consumes.
func (s *LedgerService) VerifyChain(ctx context.Context) (bool, string, error) {
	return s.VerifyDay(ctx, time.Time{})
}

// LedgerSummary aggregates one day of ledger activity.
type LedgerSummary struct {
	// Date is the UTC day summarized, YYYY-MM-DD.
	Date string `json:"date"`
	// Total is the number of entries recorded that day.
	Total int `json:"total"`
	// Decisions counts entries per outcome. All three outcomes are always
	// present, zero-filled.
	Decisions map[string]int `json:"decisions"`
	// Actions counts entries per action string.
	Actions map[string]int `json:"actions"`
	// ChainValid reports whether the day's chain verified.
	ChainValid bool `json:"chain_valid"`
}

// Summary aggregates the given day's entries and verifies the chain. A zero
// date means today.
func (s *LedgerService) Summary(ctx context.Context, date time.Time) (*LedgerSummary, error) {
	if date.IsZero() {
		date = s.now()
	}
	entries, err := s.journal.ReadDay(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("read journal for summary: %w", err)
	}

	sum := &LedgerSummary{
		Date:  date.UTC().Format("2006-01-02"),
		Total: len(entries),
		Decisions: map[string]int{
			string(audit.DecisionAllow):   0,
			string(audit.DecisionDeny):    0,
			string(audit.DecisionAskUser): 0,
		},
		Actions: make(map[string]int),
	}
	for _, e := range entries {
		sum.Decisions[string(e.Decision)]++
		sum.Actions[e.Action]++
	}
	sum.ChainValid, _ = audit.VerifySegment(entries)

	return sum, nil
}

// Recent returns the last n entries, newest first, from the journal's cache
// when it has one. Journals without a cache fall back to re-reading today's
// file.
func (s *LedgerService) Recent(ctx context.Context, n int) ([]audit.Entry, error) {
	if rr, ok := s.journal.(RecentReader); ok {
		return rr.Recent(n), nil
	}

	entries, err := s.Read(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]audit.Entry, 0, n)
	for i := len(entries) - 1; i >= len(entries)-n; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// Close releases the underlying journal.
func (s *LedgerService) Close() error {
	return s.journal.Close()
}

// Compile-time interface verification.
var _ compliance.AuditVerifier = (*LedgerService)(nil)
