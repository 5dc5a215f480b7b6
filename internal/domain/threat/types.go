// Package threat implements the live threat detector: sliding-window
// counters, the dangerous tool-sequence matcher, per-user baselines, and
// the source block list.
package threat

// Category classifies a detected threat.
type Category string

const (
	CategoryBruteForce          Category = "BRUTE_FORCE"
	CategoryRateAbuse           Category = "RATE_ABUSE"
	CategoryToolAbuse           Category = "TOOL_ABUSE"
	CategoryPrivilegeEscalation Category = "PRIVILEGE_ESCALATION"
	CategoryAnomalousBehavior   Category = "ANOMALOUS_BEHAVIOR"
	CategoryDataExfiltration    Category = "DATA_EXFILTRATION"
)

// Level grades threat severity. Levels are totally ordered; see Rank.
type Level string

const (
	LevelInfo     Level = "info"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Rank returns the numeric position of the level for floor comparisons.
// Unknown levels rank below info.
func (l Level) Rank() int {
	switch l {
	case LevelInfo:
		return 0
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	default:
		return -1
	}
}

// AtLeast reports whether l is at or above the floor.
func (l Level) AtLeast(floor Level) bool {
	return l.Rank() >= floor.Rank()
}

// Event is one detected threat. IDs are monotonic per process in the form
// threat_NNNNNN, zero-padded to six digits and widening past a million.
type Event struct {
	// ID is the monotonic event id.
	ID string `json:"id"`
	// Timestamp is the detection time in epoch seconds.
	Timestamp int64 `json:"timestamp"`
	// Category classifies the threat.
	Category Category `json:"category"`
	// Level grades the severity.
	Level Level `json:"level"`
	// Description is a human-readable summary.
	Description string `json:"description"`
	// UserID is the affected or offending user, when known.
	UserID string `json:"user_id,omitempty"`
	// Source is the offending source address, when known.
	Source string `json:"source,omitempty"`
	// Channel is the ingress channel, when known.
	Channel string `json:"channel,omitempty"`
	// Details carries rule-specific context.
	Details map[string]any `json:"details,omitempty"`
	// Mitigated is true when the detector took an automatic action.
	Mitigated bool `json:"mitigated"`
	// Action names the mitigation taken, when any.
	Action string `json:"action,omitempty"`
}

// Baseline is a per-user rolling behavior profile.
type Baseline struct {
	// CommonTools is the set of tools the user has been observed using.
	CommonTools map[string]bool `json:"common_tools"`
	// CommonHours is the set of UTC hours of day the user is active in.
	CommonHours map[int]bool `json:"common_hours"`
	// TotalRequests counts every recorded tool use.
	TotalRequests int `json:"total_requests"`
	// LastUpdated is the last profile update in epoch seconds.
	LastUpdated int64 `json:"last_updated"`
}

// clone returns a deep copy for handing outside the detector lock.
func (b *Baseline) clone() Baseline {
	c := Baseline{
		CommonTools:   make(map[string]bool, len(b.CommonTools)),
		CommonHours:   make(map[int]bool, len(b.CommonHours)),
		TotalRequests: b.TotalRequests,
		LastUpdated:   b.LastUpdated,
	}
	for k, v := range b.CommonTools {
		c.CommonTools[k] = v
	}
	for k, v := range b.CommonHours {
		c.CommonHours[k] = v
	}
	return c
}

// Summary is the 24-hour detector digest.
type Summary struct {
	// WindowHours is the summary lookback, fixed at 24.
	WindowHours int `json:"window_hours"`
	// Total counts events inside the window.
	Total int `json:"total"`
	// ByLevel counts events per severity level.
	ByLevel map[Level]int `json:"by_level"`
	// ByCategory counts events per category.
	ByCategory map[Category]int `json:"by_category"`
	// BlockedSources is the number of currently blocked sources.
	BlockedSources int `json:"blocked_sources"`
	// TrackedUsers is the number of users with a behavior baseline.
	TrackedUsers int `json:"tracked_users"`
	// Status is "alert" when an unmitigated high or critical event exists
	// inside the window, otherwise "healthy".
	Status string `json:"status"`
}

// Summary status values.
const (
	StatusHealthy = "healthy"
	StatusAlert   = "alert"
)
