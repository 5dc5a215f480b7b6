package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/threat"
	"github.com/warden-platform/warden-core/internal/metrics"
)

// EventArchive is the offline sink for emitted threat events. Archiving is
// best-effort: detection state lives in the detector and losing the archive
// never affects it.
type EventArchive interface {
	Store(ctx context.Context, ev threat.Event) error
	Since(ctx context.Context, floor time.Time, minLevel threat.Level) ([]threat.Event, error)
}

// ThreatService fronts the detector: every emitted event is logged, counted,
// and archived, and the blocked-sources gauge tracks the block list.
type ThreatService struct {
	detector *threat.Detector
	logger   *slog.Logger
	archive  EventArchive
	metrics  *metrics.Metrics
	persist  PersistHook
}

// ThreatOption configures ThreatService.
type ThreatOption func(*ThreatService)

// WithThreatArchive attaches the offline event archive.
func WithThreatArchive(a EventArchive) ThreatOption {
	return func(s *ThreatService) { s.archive = a }
}

// WithThreatMetrics attaches Prometheus collectors.
func WithThreatMetrics(m *metrics.Metrics) ThreatOption {
	return func(s *ThreatService) { s.metrics = m }
}

// WithThreatPersist attaches a hook run when the block list changes. Baseline
// drift is deliberately not persisted per check; it rides along whenever
// another mutation or a shutdown snapshots the detector.
func WithThreatPersist(hook PersistHook) ThreatOption {
	return func(s *ThreatService) { s.persist = hook }
}

// NewThreatService creates a ThreatService over the given detector.
func NewThreatService(detector *threat.Detector, logger *slog.Logger, opts ...ThreatOption) *ThreatService {
	s := &ThreatService{
		detector: detector,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAuth records an authentication attempt. A returned event means the
// source crossed the brute-force threshold and is now blocked.
func (s *ThreatService) CheckAuth(ctx context.Context, source, userID string, success bool) *threat.Event {
	ev := s.observe(ctx, s.detector.CheckAuth(source, userID, success))
	if ev != nil && ev.Mitigated {
		s.syncBlockedGauge()
		s.persisted(ctx)
	}
	return ev
}

// CheckRate records one request for the user.
func (s *ThreatService) CheckRate(ctx context.Context, userID string) *threat.Event {
	return s.observe(ctx, s.detector.CheckRate(userID))
}

// CheckTool records a tool invocation and runs the sequence, escalation, and
// baseline rules.
func (s *ThreatService) CheckTool(ctx context.Context, userID, tool string, args map[string]any) *threat.Event {
	return s.observe(ctx, s.detector.CheckTool(userID, tool, args))
}

// CheckData records a data transfer.
func (s *ThreatService) CheckData(ctx context.Context, userID, dataType string, volume int) *threat.Event {
	return s.observe(ctx, s.detector.CheckData(userID, dataType, volume))
}

// IsBlocked reports whether the source is currently blocked.
func (s *ThreatService) IsBlocked(source string) bool {
	return s.detector.IsBlocked(source)
}

// Unblock removes a source from the block list ahead of its expiry. It
// reports whether the source was blocked.
func (s *ThreatService) Unblock(ctx context.Context, source string) bool {
	ok := s.detector.Unblock(source)
	if ok {
		s.logger.Info("source unblocked", "source", source)
		s.syncBlockedGauge()
		s.persisted(ctx)
	}
	return ok
}

// BlockedSources returns the currently blocked sources, sorted.
func (s *ThreatService) BlockedSources() []string {
	return s.detector.BlockedSources()
}

// BaselineFor returns a copy of the user's behavior baseline.
func (s *ThreatService) BaselineFor(userID string) (threat.Baseline, bool) {
	return s.detector.BaselineFor(userID)
}

// Recent returns up to limit in-memory events, newest first, at or above
// minLevel.
func (s *ThreatService) Recent(limit int, minLevel threat.Level) []threat.Event {
	return s.detector.Recent(limit, minLevel)
}

// Summary returns the 24-hour detector digest.
func (s *ThreatService) Summary() threat.Summary {
	sum := s.detector.Summary()
	if s.metrics != nil {
		s.metrics.BlockedSources.Set(float64(sum.BlockedSources))
	}
	return sum
}

// Archived queries the offline archive for events at or after floor with
// severity at or above minLevel, newest first.
func (s *ThreatService) Archived(ctx context.Context, floor time.Time, minLevel threat.Level) ([]threat.Event, error) {
	if s.archive == nil {
		return nil, fault.New(fault.NotFound, "no threat archive configured")
	}
	return s.archive.Since(ctx, floor, minLevel)
}

// ExportState copies the persistable detector state.
func (s *ThreatService) ExportState() threat.State {
	return s.detector.ExportState()
}

// ImportState restores baselines and blocks from a snapshot.
func (s *ThreatService) ImportState(ctx context.Context, state threat.State) {
	s.detector.ImportState(state)
	s.syncBlockedGauge()
	s.persisted(ctx)
}

// observe logs, counts, and archives an emitted event. Nil passes through so
// callers can wrap detector calls directly.
func (s *ThreatService) observe(ctx context.Context, ev *threat.Event) *threat.Event {
	if ev == nil {
		return nil
	}

	s.logger.Warn("threat detected",
		"event_id", ev.ID,
		"category", ev.Category,
		"level", ev.Level,
		"user_id", ev.UserID,
		"source", ev.Source,
	)
	if s.metrics != nil {
		s.metrics.ThreatEvents.WithLabelValues(string(ev.Level)).Inc()
	}
	if s.archive != nil {
		if err := s.archive.Store(ctx, *ev); err != nil {
			s.logger.Error("failed to archive threat event",
				"event_id", ev.ID,
				"error", err,
			)
		}
	}
	return ev
}

func (s *ThreatService) syncBlockedGauge() {
	if s.metrics == nil {
		return
	}
	s.metrics.BlockedSources.Set(float64(len(s.detector.BlockedSources())))
}

func (s *ThreatService) persisted(ctx context.Context) {
	if s.persist != nil {
		s.persist(ctx)
	}
}
