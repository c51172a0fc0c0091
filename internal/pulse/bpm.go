package pulse

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

const msPerMinute = 60000

// Estimator keeps the most recent heartbeats and derives a heart rate from the
// average interval between them.
type Estimator struct {
	beats     []Heartbeat
	head      int // index of the oldest beat
	count     int
	intervals []float64
}

func NewEstimator(capacity int) *Estimator {
	if capacity < minHistoryLength {
		capacity = minHistoryLength
	}
	return &Estimator{
		beats:     make([]Heartbeat, capacity),
		intervals: make([]float64, 0, capacity-1),
	}
}

// Record appends b, evicting the oldest beat when the history is full.
func (e *Estimator) Record(b Heartbeat) {
	if e.count < len(e.beats) {
		e.beats[(e.head+e.count)%len(e.beats)] = b
		e.count++
		return
	}

	e.beats[e.head] = b
	e.head = (e.head + 1) % len(e.beats)
}

// Estimate returns the heart rate over the recorded history. It is not
// available until two beats have been recorded.
func (e *Estimator) Estimate() (BPM, bool) {
	intervals := e.fillIntervals()
	if len(intervals) == 0 {
		return 0, false
	}

	mean := stat.Mean(intervals, nil)
	if mean <= 0 {
		return 0, false
	}

	return BPM(msPerMinute / mean), true
}

// Jitter returns the standard deviation of the inter-beat intervals. It needs
// at least two intervals.
func (e *Estimator) Jitter() (time.Duration, bool) {
	intervals := e.fillIntervals()
	if len(intervals) < 2 {
		return 0, false
	}

	sd := stat.StdDev(intervals, nil)
	return time.Duration(sd * float64(time.Millisecond)), true
}

func (e *Estimator) fillIntervals() []float64 {
	e.intervals = e.intervals[:0]
	for i := 1; i < e.count; i++ {
		d := e.at(i).Timestamp - e.at(i-1).Timestamp
		e.intervals = append(e.intervals, float64(d))
	}
	return e.intervals
}

// Last returns the most recently recorded beat.
func (e *Estimator) Last() (Heartbeat, bool) {
	if e.count == 0 {
		return Heartbeat{}, false
	}
	return e.at(e.count - 1), true
}

// Beats returns a copy of the history, oldest first.
func (e *Estimator) Beats() []Heartbeat {
	out := make([]Heartbeat, e.count)
	for i := range out {
		out[i] = e.at(i)
	}
	return out
}

func (e *Estimator) Len() int {
	return e.count
}

func (e *Estimator) Cap() int {
	return len(e.beats)
}

func (e *Estimator) at(i int) Heartbeat {
	return e.beats[(e.head+i)%len(e.beats)]
}
