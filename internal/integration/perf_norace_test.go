//go:build !race

package integration

import "time"

// Latency ceilings for the decision-path percentile test on a plain build.
// The full path is in-memory plus one journal append, so single-digit
// milliseconds is already generous.
const (
	perfP99Threshold = 5 * time.Millisecond
	perfP50Threshold = 1 * time.Millisecond
)
