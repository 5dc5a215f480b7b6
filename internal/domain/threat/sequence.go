package threat

import (
	"fmt"
	"strings"
)

// dangerousSequences are tool patterns that indicate abuse when they appear
// as an order-preserving subsequence of a user's recent tool trace.
var dangerousSequences = [][]string{
	{"shell_exec", "file_write", "network_request"},
	{"file_read", "network_request"},
	{"shell_exec", "shell_exec", "shell_exec", "shell_exec"},
}

// escalationIndicators are substrings that mark privilege-escalation
// attempts when present in stringified tool arguments.
var escalationIndicators = []string{
	"sudo",
	"admin",
	"root",
	"chmod 777",
	"setuid",
	"--privileged",
	"grant all",
}

// IsSubsequence reports whether pattern appears in trace in order, not
// necessarily contiguously. The empty pattern matches everything.
func IsSubsequence(trace, pattern []string) bool {
	if len(pattern) == 0 {
		return true
	}
	i := 0
	for _, item := range trace {
		if item == pattern[i] {
			i++
			if i == len(pattern) {
				return true
			}
		}
	}
	return false
}

// matchDangerousSequence returns the first dangerous pattern found in the
// trace, or nil.
func matchDangerousSequence(trace []string) []string {
	for _, pattern := range dangerousSequences {
		if IsSubsequence(trace, pattern) {
			return pattern
		}
	}
	return nil
}

// matchEscalationIndicator returns the first escalation indicator present
// in the lowercased stringified args, or "".
func matchEscalationIndicator(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	flat := strings.ToLower(fmt.Sprintf("%v", args))
	for _, indicator := range escalationIndicators {
		if strings.Contains(flat, indicator) {
			return indicator
		}
	}
	return ""
}
