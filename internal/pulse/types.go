// Package pulse implements the heartbeat detection pipeline: a moving-average
// smoothing filter, a sliding window over smoothed samples, a peak detector
// and a BPM estimator over the most recent peaks.
package pulse

import "time"

// Domain types
type (
	// Sample is an unsigned sensor magnitude. Larger means stronger signal.
	Sample uint32

	// Millis is a timestamp in milliseconds since the run started.
	Millis int64

	// BPM is a heart rate in beats per minute.
	BPM float64
)

// Heartbeat is a detected peak.
type Heartbeat struct {
	Value     Sample
	Timestamp Millis
}

// MillisOf converts a duration to Millis.
func MillisOf(d time.Duration) Millis {
	return Millis(d.Milliseconds())
}

// Duration converts m back to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}
