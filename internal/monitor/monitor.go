// Package monitor runs the sampling cycle: acquire a sample, feed the
// pipeline, report the heart rate on a fixed cadence and sleep out the rest of
// the sample period.
package monitor

import (
	"context"
	"io"
	"time"

	"codeberg.org/mutker/pulsemon/internal/clock"
	"codeberg.org/mutker/pulsemon/internal/errors"
	"codeberg.org/mutker/pulsemon/internal/logger"
	"codeberg.org/mutker/pulsemon/internal/metrics"
	"codeberg.org/mutker/pulsemon/internal/pulse"
	"codeberg.org/mutker/pulsemon/internal/report"
	"codeberg.org/mutker/pulsemon/internal/sensor"
)

type Config struct {
	SamplePeriod   time.Duration
	ReportInterval time.Duration
	Pipeline       pulse.Config
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.SamplePeriod <= 0 || c.ReportInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			SamplePeriod   time.Duration
			ReportInterval time.Duration
		}{
			SamplePeriod:   c.SamplePeriod,
			ReportInterval: c.ReportInterval,
		})
	}
	return c.Pipeline.Validate()
}

// Monitor owns the pipeline state and drives it from a single goroutine.
type Monitor struct {
	cfg      Config
	source   sensor.Source
	clock    clock.Clock
	reporter report.Reporter
	metrics  metrics.Collector
	log      logger.Logger

	pipeline   *pulse.Pipeline
	ready      bool
	start      time.Time
	lastReport pulse.Millis
	pending    []pulse.Heartbeat
	cycles     int64
	overruns   int64
}

// readiness is implemented by sources that have no meaningful sample until
// the sensor has produced its first reading.
type readiness interface {
	Ready() bool
}

// Option configures optional collaborators.
type Option func(*Monitor)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithMetrics records a snapshot at every report.
func WithMetrics(c metrics.Collector) Option {
	return func(m *Monitor) {
		m.metrics = c
	}
}

// WithLogger replaces the default logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) {
		m.log = l
	}
}

func New(cfg Config, source sensor.Source, reporter report.Reporter, opts ...Option) (*Monitor, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	pipeline, err := pulse.NewPipeline(cfg.Pipeline)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	m := &Monitor{
		cfg:      cfg,
		source:   source,
		reporter: reporter,
		clock:    clock.Real{},
		log:      logger.Default(),
		pipeline: pipeline,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Run samples until ctx is cancelled or the source is exhausted. Exhaustion
// is not an error.
func (m *Monitor) Run(ctx context.Context) error {
	errFactory := errors.New()

	m.start = m.clock.Now()
	m.lastReport = 0

	m.log.Info().
		Dur("sample_period", m.cfg.SamplePeriod).
		Dur("report_interval", m.cfg.ReportInterval).
		Int("filter_length", m.cfg.Pipeline.FilterLength).
		Int("window_length", m.cfg.Pipeline.WindowLength).
		Int("history_length", m.cfg.Pipeline.HistoryLength).
		Uint32("min_amplitude", uint32(m.cfg.Pipeline.MinAmplitude)).
		Dur("min_beat_distance", m.cfg.Pipeline.MinBeatDistance).
		Msg("Monitoring heart rate")

	for {
		select {
		case <-ctx.Done():
			m.log.Debug().
				Int64("cycles", m.cycles).
				Int64("overruns", m.overruns).
				Msg("Sampling stopped")
			return nil
		default:
		}

		done, err := m.cycle(ctx)
		if err != nil {
			return errFactory.Wrap(errors.ErrMainLoop, err)
		}
		if done {
			m.log.Info().Int64("cycles", m.cycles).Msg("Sample source exhausted")
			return nil
		}
	}
}

// cycle runs one acquire, filter, detect, report and sleep step.
func (m *Monitor) cycle(ctx context.Context) (bool, error) {
	errFactory := errors.New()
	cycleStart := m.clock.Now()
	m.cycles++

	raw, err := m.source.Read()
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, errFactory.Wrap(errors.ErrReadSample, err)
	}

	now := pulse.MillisOf(m.clock.Since(m.start))

	if m.sourceReady(now) {
		if beat, ok := m.pipeline.Step(raw, now); ok {
			m.pending = append(m.pending, beat)
			m.log.Debug().
				Int64("timestamp_ms", int64(beat.Timestamp)).
				Uint32("value", uint32(beat.Value)).
				Msg("Heartbeat")
		}
	}

	if now-m.lastReport >= pulse.MillisOf(m.cfg.ReportInterval) {
		m.lastReport = now
		m.report(ctx, now)
	}

	// Late cycles are not made up; they just lower the sampling rate.
	elapsed := m.clock.Since(cycleStart)
	if elapsed >= m.cfg.SamplePeriod {
		m.overruns++
		return false, nil
	}
	m.clock.Sleep(m.cfg.SamplePeriod - elapsed)

	return false, nil
}

// sourceReady reports whether samples should reach the pipeline. Sources
// that are still waiting for their first reading are kept out of the filter.
func (m *Monitor) sourceReady(now pulse.Millis) bool {
	if m.ready {
		return true
	}

	r, ok := m.source.(readiness)
	if ok && !r.Ready() {
		return false
	}

	m.ready = true
	if ok {
		m.log.Debug().Int64("elapsed_ms", int64(now)).Msg("First sensor sample received")
	}
	return true
}

// report emits the current reading and records a metrics snapshot. Neither
// failure stops sampling.
func (m *Monitor) report(ctx context.Context, now pulse.Millis) {
	errFactory := errors.New()

	bpm, ok := m.pipeline.Estimate()
	reading := report.Reading{Elapsed: now, BPM: bpm, Available: ok}

	if err := m.reporter.Report(ctx, reading); err != nil {
		m.log.Warn().Err(errFactory.Wrap(errors.ErrReportBPM, err)).Msg("Failed to report heart rate")
	}

	jitter, hasJitter := m.pipeline.Jitter()

	ev := m.log.Debug().
		Int64("elapsed_ms", int64(now)).
		Bool("available", ok).
		Float64("bpm", float64(bpm)).
		Int("beats", m.pipeline.HistoryLen()).
		Int64("overruns", m.overruns)
	if hasJitter {
		ev = ev.Dur("jitter", jitter)
	}
	ev.Msg("Report")

	if m.metrics == nil {
		m.pending = m.pending[:0]
		return
	}

	snapshot := &metrics.Snapshot{
		Timestamp:  m.clock.Now(),
		Elapsed:    now,
		BPM:        bpm,
		Available:  ok,
		Jitter:     jitter,
		HasJitter:  hasJitter,
		HistoryLen: m.pipeline.HistoryLen(),
		Beats:      append([]pulse.Heartbeat(nil), m.pending...),
	}
	m.pending = m.pending[:0]

	if err := m.metrics.Record(ctx, snapshot); err != nil && !errors.Is(err, context.Canceled) {
		m.log.Warn().Err(errFactory.Wrap(errors.ErrCollectMetrics, err)).Msg("Failed to record metrics")
	}
}
