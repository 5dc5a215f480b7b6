//go:build race

package integration

import "time"

// Latency ceilings for the decision-path percentile test under the race
// detector, which slows the path by roughly an order of magnitude.
const (
	perfP99Threshold = 25 * time.Millisecond
	perfP50Threshold = 10 * time.Millisecond
)
