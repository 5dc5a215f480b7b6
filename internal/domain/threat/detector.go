package threat

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Detection thresholds. All are overridable via options; the defaults match
// the shipped security profile.
const (
	DefaultMaxFailedAuth        = 5
	DefaultAuthWindow           = 300 * time.Second
	DefaultBlockDuration        = 900 * time.Second
	DefaultMaxRequestsPerMinute = 60
	DefaultMaxDataVolume        = 100_000
	DefaultEventCap             = 10_000
	DefaultRecentLimit          = 100

	// ActionSourceBlocked is the mitigation action recorded when a source
	// is auto-blocked after repeated auth failures.
	ActionSourceBlocked = "source_blocked_15m"

	rateWindow      = time.Minute
	toolTraceWindow = time.Minute
	maxToolHistory  = 100

	// Baseline anomaly rule: only users with more than baselineMinRequests
	// recorded requests are profiled, and an event fires when at least
	// anomalyFloor of the last anomalyRecent tool uses are outside the
	// user's common set.
	baselineMinRequests = 50
	anomalyRecent       = 5
	anomalyFloor        = 3
)

type toolUse struct {
	at   time.Time
	tool string
}

// Detector runs the detection rules over sliding windows of auth failures,
// request rates, and tool usage. All state lives in memory under one lock;
// buffers are pruned on access so memory stays proportional to the number
// of active sources and users times the window size.
type Detector struct {
	mu sync.Mutex

	maxFailedAuth int
	authWindow    time.Duration
	blockFor      time.Duration
	maxPerMinute  int
	maxDataBytes  int
	eventCap      int
	now           func() time.Time

	failures     map[string][]time.Time // failed auth timestamps per source
	requests     map[string][]time.Time // request timestamps per user
	histories    map[string][]toolUse   // recent tool uses per user
	baselines    map[string]*Baseline
	blockedUntil map[string]time.Time
	events       []Event
	seq          uint64
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithMaxFailedAuth sets the failure count that triggers a brute-force event.
func WithMaxFailedAuth(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.maxFailedAuth = n
		}
	}
}

// WithAuthWindow sets the sliding window for counting auth failures.
func WithAuthWindow(w time.Duration) Option {
	return func(d *Detector) {
		if w > 0 {
			d.authWindow = w
		}
	}
}

// WithBlockDuration sets how long an auto-blocked source stays blocked.
func WithBlockDuration(dur time.Duration) Option {
	return func(d *Detector) {
		if dur > 0 {
			d.blockFor = dur
		}
	}
}

// WithMaxRequestsPerMinute sets the per-user rate ceiling.
func WithMaxRequestsPerMinute(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.maxPerMinute = n
		}
	}
}

// WithMaxDataVolume sets the byte threshold for data-exfiltration events.
func WithMaxDataVolume(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.maxDataBytes = n
		}
	}
}

// WithEventCap bounds the retained event ring.
func WithEventCap(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.eventCap = n
		}
	}
}

// NewDetector creates a detector with default thresholds.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		maxFailedAuth: DefaultMaxFailedAuth,
		authWindow:    DefaultAuthWindow,
		blockFor:      DefaultBlockDuration,
		maxPerMinute:  DefaultMaxRequestsPerMinute,
		maxDataBytes:  DefaultMaxDataVolume,
		eventCap:      DefaultEventCap,
		now:           time.Now,
		failures:      make(map[string][]time.Time),
		requests:      make(map[string][]time.Time),
		histories:     make(map[string][]toolUse),
		baselines:     make(map[string]*Baseline),
		blockedUntil:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CheckAuth records an authentication attempt from source. A success clears
// the source's failure window and returns nil. A failure that brings the
// window count to the threshold emits a BRUTE_FORCE event and blocks the
// source for the configured duration.
func (d *Detector) CheckAuth(source, userID string, success bool) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	if success {
		delete(d.failures, source)
		return nil
	}

	now := d.now()
	buf := pruneTimes(d.failures[source], now.Add(-d.authWindow))
	buf = append(buf, now)
	d.failures[source] = buf

	if len(buf) < d.maxFailedAuth {
		return nil
	}

	d.blockedUntil[source] = now.Add(d.blockFor)
	return d.record(now, Event{
		Category:    CategoryBruteForce,
		Level:       LevelHigh,
		Description: fmt.Sprintf("%d failed auth attempts within %ds", len(buf), int(d.authWindow.Seconds())),
		UserID:      userID,
		Source:      source,
		Details: map[string]any{
			"failed_attempts": len(buf),
			"window_seconds":  int(d.authWindow.Seconds()),
			"blocked_until":   d.blockedUntil[source].Unix(),
		},
		Mitigated: true,
		Action:    ActionSourceBlocked,
	})
}

// CheckRate records one request for the user and emits a RATE_ABUSE event
// when the count in the last minute exceeds the ceiling.
func (d *Detector) CheckRate(userID string) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	buf := pruneTimes(d.requests[userID], now.Add(-rateWindow))
	buf = append(buf, now)
	d.requests[userID] = buf

	if len(buf) <= d.maxPerMinute {
		return nil
	}

	return d.record(now, Event{
		Category:    CategoryRateAbuse,
		Level:       LevelMedium,
		Description: fmt.Sprintf("%d requests in the last minute (limit %d)", len(buf), d.maxPerMinute),
		UserID:      userID,
		Details: map[string]any{
			"requests": len(buf),
			"limit":    d.maxPerMinute,
		},
	})
}

// CheckTool records a tool invocation and applies, in order: the dangerous
// subsequence match over the last minute of the user's trace, the
// privilege-escalation indicator scan over the stringified args, and the
// baseline anomaly rule. The user's baseline is updated regardless of the
// outcome, after the rules have run.
func (d *Detector) CheckTool(userID, tool string, args map[string]any) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	hist := append(d.histories[userID], toolUse{at: now, tool: tool})
	if len(hist) > maxToolHistory {
		hist = hist[len(hist)-maxToolHistory:]
	}
	d.histories[userID] = hist

	var ev *Event
	cutoff := now.Add(-toolTraceWindow)
	trace := make([]string, 0, len(hist))
	for _, use := range hist {
		if use.at.After(cutoff) {
			trace = append(trace, use.tool)
		}
	}

	if pattern := matchDangerousSequence(trace); pattern != nil {
		ev = d.record(now, Event{
			Category:    CategoryToolAbuse,
			Level:       LevelHigh,
			Description: fmt.Sprintf("dangerous tool sequence %v detected", pattern),
			UserID:      userID,
			Details: map[string]any{
				"pattern": pattern,
				"trace":   trace,
			},
		})
	} else if indicator := matchEscalationIndicator(args); indicator != "" {
		ev = d.record(now, Event{
			Category:    CategoryPrivilegeEscalation,
			Level:       LevelHigh,
			Description: fmt.Sprintf("privilege escalation indicator %q in %s arguments", indicator, tool),
			UserID:      userID,
			Details: map[string]any{
				"indicator": indicator,
				"tool":      tool,
			},
		})
	} else if base, ok := d.baselines[userID]; ok && base.TotalRequests > baselineMinRequests && !base.CommonTools[tool] {
		start := len(hist) - anomalyRecent
		if start < 0 {
			start = 0
		}
		unusual := 0
		for _, use := range hist[start:] {
			if !base.CommonTools[use.tool] {
				unusual++
			}
		}
		if unusual >= anomalyFloor {
			ev = d.record(now, Event{
				Category:    CategoryAnomalousBehavior,
				Level:       LevelMedium,
				Description: fmt.Sprintf("%d of the last %d tools are outside the user's baseline", unusual, anomalyRecent),
				UserID:      userID,
				Details: map[string]any{
					"tool":           tool,
					"unusual_recent": unusual,
				},
			})
		}
	}

	base := d.baselines[userID]
	if base == nil {
		base = &Baseline{
			CommonTools: make(map[string]bool),
			CommonHours: make(map[int]bool),
		}
		d.baselines[userID] = base
	}
	base.CommonTools[tool] = true
	base.CommonHours[now.UTC().Hour()] = true
	base.TotalRequests++
	base.LastUpdated = now.Unix()

	return ev
}

// CheckData emits a DATA_EXFILTRATION event when a single transfer exceeds
// the volume threshold.
func (d *Detector) CheckData(userID, dataType string, volume int) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	if volume <= d.maxDataBytes {
		return nil
	}

	now := d.now()
	return d.record(now, Event{
		Category:    CategoryDataExfiltration,
		Level:       LevelMedium,
		Description: fmt.Sprintf("%d bytes of %s transferred (threshold %d)", volume, dataType, d.maxDataBytes),
		UserID:      userID,
		Details: map[string]any{
			"data_type":    dataType,
			"volume_bytes": volume,
			"threshold":    d.maxDataBytes,
		},
	})
}

// IsBlocked reports whether the source is currently blocked. Expired block
// entries are pruned as a side effect.
func (d *Detector) IsBlocked(source string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	until, ok := d.blockedUntil[source]
	if !ok {
		return false
	}
	if !d.now().Before(until) {
		delete(d.blockedUntil, source)
		return false
	}
	return true
}

// Unblock manually removes a source from the block list. It reports whether
// the source was blocked.
func (d *Detector) Unblock(source string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.blockedUntil[source]
	delete(d.blockedUntil, source)
	return ok
}

// BlockedSources returns the sources currently blocked, sorted. Expired
// entries are pruned as a side effect.
func (d *Detector) BlockedSources() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	out := make([]string, 0, len(d.blockedUntil))
	for source, until := range d.blockedUntil {
		if !now.Before(until) {
			delete(d.blockedUntil, source)
			continue
		}
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

// BaselineFor returns a copy of the user's behavior baseline.
func (d *Detector) BaselineFor(userID string) (Baseline, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	base, ok := d.baselines[userID]
	if !ok {
		return Baseline{}, false
	}
	return base.clone(), true
}

// Recent returns up to limit events, newest first, filtered to levels at or
// above minLevel. An empty minLevel means no filter; limit <= 0 means
// DefaultRecentLimit.
func (d *Detector) Recent(limit int, minLevel Level) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	out := make([]Event, 0, limit)
	for i := len(d.events) - 1; i >= 0 && len(out) < limit; i-- {
		ev := d.events[i]
		if minLevel != "" && !ev.Level.AtLeast(minLevel) {
			continue
		}
		out = append(out, cloneEvent(ev))
	}
	return out
}

// Summary digests the last 24 hours of events plus the current block list
// and baseline population. Status is alert when any unmitigated high or
// critical event falls inside the window.
func (d *Detector) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	cutoff := now.Add(-24 * time.Hour).Unix()
	sum := Summary{
		WindowHours: 24,
		ByLevel:     make(map[Level]int),
		ByCategory:  make(map[Category]int),
		Status:      StatusHealthy,
	}
	for _, ev := range d.events {
		if ev.Timestamp < cutoff {
			continue
		}
		sum.Total++
		sum.ByLevel[ev.Level]++
		sum.ByCategory[ev.Category]++
		if !ev.Mitigated && ev.Level.AtLeast(LevelHigh) {
			sum.Status = StatusAlert
		}
	}
	for source, until := range d.blockedUntil {
		if !now.Before(until) {
			delete(d.blockedUntil, source)
			continue
		}
		sum.BlockedSources++
	}
	sum.TrackedUsers = len(d.baselines)
	return sum
}

// State is the persistable slice of detector memory: behavior baselines and
// active blocks. Sliding windows and the event ring are ephemeral; the event
// counter restarts per process.
type State struct {
	Baselines    map[string]Baseline `json:"baselines,omitempty"`
	BlockedUntil map[string]int64    `json:"blocked_until,omitempty"`
}

// ExportState copies the persistable detector state.
func (d *Detector) ExportState() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := State{
		Baselines:    make(map[string]Baseline, len(d.baselines)),
		BlockedUntil: make(map[string]int64, len(d.blockedUntil)),
	}
	for user, base := range d.baselines {
		s.Baselines[user] = base.clone()
	}
	now := d.now()
	for source, until := range d.blockedUntil {
		if now.Before(until) {
			s.BlockedUntil[source] = until.Unix()
		}
	}
	return s
}

// ImportState restores baselines and blocks from a snapshot, replacing any
// entry with the same key. Expired blocks are dropped.
func (d *Detector) ImportState(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for user, base := range s.Baselines {
		restored := base.clone()
		if restored.CommonTools == nil {
			restored.CommonTools = make(map[string]bool)
		}
		if restored.CommonHours == nil {
			restored.CommonHours = make(map[int]bool)
		}
		d.baselines[user] = &restored
	}
	for source, until := range s.BlockedUntil {
		t := time.Unix(until, 0)
		if now.Before(t) {
			d.blockedUntil[source] = t
		}
	}
}

// record assigns the next id, stamps and stores the event, and returns a
// copy. Caller must hold d.mu.
func (d *Detector) record(now time.Time, ev Event) *Event {
	d.seq++
	ev.ID = fmt.Sprintf("threat_%06d", d.seq)
	ev.Timestamp = now.Unix()
	d.events = append(d.events, ev)
	if len(d.events) > d.eventCap {
		d.events = d.events[len(d.events)-d.eventCap:]
	}
	out := cloneEvent(ev)
	return &out
}

func cloneEvent(ev Event) Event {
	if ev.Details == nil {
		return ev
	}
	details := make(map[string]any, len(ev.Details))
	for k, v := range ev.Details {
		details[k] = v
	}
	ev.Details = details
	return ev
}

// pruneTimes drops timestamps at or before cutoff, filtering in place.
func pruneTimes(buf []time.Time, cutoff time.Time) []time.Time {
	keep := buf[:0]
	for _, t := range buf {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	return keep
}
