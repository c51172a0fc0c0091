package pulse

import "time"

// Pipeline owns the filter, window and estimator state for one sensor stream
// and runs one raw sample through them per Step.
type Pipeline struct {
	filter    *Filter
	window    *Window
	detector  *Detector
	estimator *Estimator
}

// NewPipeline validates cfg and builds an empty pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		filter:    NewFilter(cfg.FilterLength),
		window:    NewWindow(cfg.WindowLength),
		detector:  NewDetector(cfg.MinAmplitude, cfg.MinBeatDistance),
		estimator: NewEstimator(cfg.HistoryLength),
	}, nil
}

// Step filters raw, pushes it into the window and, once the window is full,
// runs peak detection at time now. An accepted heartbeat is recorded and
// returned.
func (p *Pipeline) Step(raw Sample, now Millis) (Heartbeat, bool) {
	smoothed := p.filter.Apply(raw)

	view, ready := p.window.Push(smoothed)
	if !ready {
		return Heartbeat{}, false
	}

	prev, hasPrev := p.estimator.Last()
	beat, ok := p.detector.Detect(view, now, prev, hasPrev)
	if !ok {
		return Heartbeat{}, false
	}

	p.estimator.Record(beat)

	return beat, true
}

// Estimate returns the current heart rate, if enough beats have been seen.
func (p *Pipeline) Estimate() (BPM, bool) {
	return p.estimator.Estimate()
}

// Jitter returns the spread of the recent inter-beat intervals.
func (p *Pipeline) Jitter() (time.Duration, bool) {
	return p.estimator.Jitter()
}

// HistoryLen returns the number of beats the estimate is based on.
func (p *Pipeline) HistoryLen() int {
	return p.estimator.Len()
}

// WarmedUp reports whether the window has filled and detection is running.
func (p *Pipeline) WarmedUp() bool {
	return p.window.Full()
}
