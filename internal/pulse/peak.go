package pulse

import "time"

// Detector decides whether the center of a full window is a heartbeat.
// It holds only its thresholds; the previous accepted beat is supplied by
// the caller.
type Detector struct {
	minAmplitude    Sample
	minBeatDistance Millis
}

func NewDetector(minAmplitude Sample, minBeatDistance time.Duration) *Detector {
	return &Detector{
		minAmplitude:    minAmplitude,
		minBeatDistance: MillisOf(minBeatDistance),
	}
}

// Detect evaluates the center sample of v at time now. The center is a peak
// when it is strictly greater than the mean of the samples left of it, the
// mean of the samples right of it, and the minimum amplitude. A peak closer
// than the minimum beat distance to prev is dropped.
func (d *Detector) Detect(v View, now Millis, prev Heartbeat, hasPrev bool) (Heartbeat, bool) {
	n := v.Len()
	if n < minWindowLength {
		return Heartbeat{}, false
	}

	center := v.Center()
	middle := v.At(center)

	if middle <= d.minAmplitude {
		return Heartbeat{}, false
	}

	var left, right uint64
	for i := 0; i < center; i++ {
		left += uint64(v.At(i))
	}
	for i := center + 1; i < n; i++ {
		right += uint64(v.At(i))
	}

	// middle > sum/count, without rounding the mean.
	m := uint64(middle)
	if m*uint64(center) <= left || m*uint64(n-center-1) <= right {
		return Heartbeat{}, false
	}

	if hasPrev && now-prev.Timestamp < d.minBeatDistance {
		return Heartbeat{}, false
	}

	return Heartbeat{Value: middle, Timestamp: now}, true
}
