//go:build !race

package integration

import "time"

// perfP99Threshold is the maximum acceptable p99 evaluation latency without the race detector.
var perfP99Threshold = 2 * time.Millisecond

// perfP50Threshold is the maximum acceptable p50 evaluation latency without the race detector.
var perfP50Threshold = 250 * time.Microsecond
