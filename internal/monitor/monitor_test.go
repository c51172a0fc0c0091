package monitor_test

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"codeberg.org/mutker/pulsemon/internal/clock"
	"codeberg.org/mutker/pulsemon/internal/config"
	"codeberg.org/mutker/pulsemon/internal/errors"
	"codeberg.org/mutker/pulsemon/internal/metrics"
	"codeberg.org/mutker/pulsemon/internal/monitor"
	"codeberg.org/mutker/pulsemon/internal/pulse"
	"codeberg.org/mutker/pulsemon/internal/report"
	"codeberg.org/mutker/pulsemon/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// stopAfter collects readings and cancels the run after n of them.
type stopAfter struct {
	n        int
	cancel   context.CancelFunc
	readings []report.Reading
}

func (s *stopAfter) Report(_ context.Context, r report.Reading) error {
	s.readings = append(s.readings, r)
	if len(s.readings) >= s.n {
		s.cancel()
	}
	return nil
}

func (*stopAfter) Close() error {
	return nil
}

// sliceSource replays fixed samples, optionally taking time on each read.
type sliceSource struct {
	samples []pulse.Sample
	clk     *clock.Manual
	cost    time.Duration
	reads   []time.Duration
	err     error
}

func (s *sliceSource) Read() (pulse.Sample, error) {
	if s.clk != nil {
		s.reads = append(s.reads, s.clk.Since(epoch))
		s.clk.Advance(s.cost)
	}
	if len(s.samples) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	v := s.samples[0]
	s.samples = s.samples[1:]
	return v, nil
}

func (*sliceSource) Close() error {
	return nil
}

type fakeCollector struct {
	snapshots []*metrics.Snapshot
}

func (f *fakeCollector) Record(_ context.Context, s *metrics.Snapshot) error {
	f.snapshots = append(f.snapshots, s)
	return nil
}

func (*fakeCollector) Session() string { return "test" }

func (*fakeCollector) Close() error { return nil }

func spikeTrain() sensor.SyntheticConfig {
	return sensor.SyntheticConfig{
		BeatInterval: 800 * time.Millisecond,
		SpikeWidth:   100 * time.Millisecond,
		Amplitude:    900,
		Baseline:     50,
		Noise:        20,
		Seed:         3,
	}
}

func TestMonitorConvergesOnPeriodicSpikes(t *testing.T) {
	tests := []struct {
		name     string
		pipeline pulse.Config
	}{
		{
			name: "unsmoothed",
			pipeline: pulse.Config{
				FilterLength:    1,
				WindowLength:    3,
				HistoryLength:   5,
				MinAmplitude:    100,
				MinBeatDistance: 400 * time.Millisecond,
			},
		},
		{
			name: "smoothed",
			pipeline: pulse.Config{
				FilterLength:    2,
				WindowLength:    5,
				HistoryLength:   5,
				MinAmplitude:    100,
				MinBeatDistance: 400 * time.Millisecond,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewManual(epoch)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			rep := &stopAfter{n: 8, cancel: cancel}
			cfg := monitor.Config{
				SamplePeriod:   200 * time.Millisecond,
				ReportInterval: time.Second,
				Pipeline:       tt.pipeline,
			}

			m, err := monitor.New(cfg, sensor.NewSynthetic(spikeTrain(), clk), rep, monitor.WithClock(clk))
			require.NoError(t, err)
			require.NoError(t, m.Run(ctx))

			require.Len(t, rep.readings, 8)
			assert.False(t, rep.readings[0].Available, "one beat is not enough for an estimate")
			for i, r := range rep.readings[2:] {
				require.True(t, r.Available, "reading %d", i+2)
				assert.InDelta(t, 75.0, float64(r.BPM), 0.5, "reading %d", i+2)
				assert.Equal(t, "BPM: 75", r.String())
			}
		})
	}
}

func TestMonitorReportsOnCadence(t *testing.T) {
	clk := clock.NewManual(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rep := &stopAfter{n: 3, cancel: cancel}
	cfg := monitor.Config{
		SamplePeriod:   100 * time.Millisecond,
		ReportInterval: time.Second,
		Pipeline:       pulse.DefaultConfig(),
	}
	src := sensor.NewSynthetic(sensor.SyntheticConfig{Baseline: 10}, clk)

	m, err := monitor.New(cfg, src, rep, monitor.WithClock(clk))
	require.NoError(t, err)
	require.NoError(t, m.Run(ctx))

	var elapsed []pulse.Millis
	for _, r := range rep.readings {
		elapsed = append(elapsed, r.Elapsed)
		assert.False(t, r.Available)
		assert.Equal(t, "BPM: --", r.String())
	}
	assert.Equal(t, []pulse.Millis{1000, 2000, 3000}, elapsed)
}

func TestMonitorSleepsRemainderOfPeriod(t *testing.T) {
	clk := clock.NewManual(epoch)
	src := &sliceSource{samples: make([]pulse.Sample, 5), clk: clk, cost: 50 * time.Millisecond}
	cfg := monitor.Config{
		SamplePeriod:   200 * time.Millisecond,
		ReportInterval: time.Hour,
		Pipeline:       pulse.DefaultConfig(),
	}

	m, err := monitor.New(cfg, src, report.Multi{}, monitor.WithClock(clk))
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))

	slept, calls := clk.Slept()
	assert.Equal(t, 5, calls)
	assert.Equal(t, 5*150*time.Millisecond, slept)
	assert.Equal(t, []time.Duration{
		0, 200 * time.Millisecond, 400 * time.Millisecond, 600 * time.Millisecond, 800 * time.Millisecond,
		1000 * time.Millisecond,
	}, src.reads)
}

func TestMonitorOverrunLowersSampleRate(t *testing.T) {
	clk := clock.NewManual(epoch)
	src := &sliceSource{samples: make([]pulse.Sample, 4), clk: clk, cost: 300 * time.Millisecond}
	cfg := monitor.Config{
		SamplePeriod:   200 * time.Millisecond,
		ReportInterval: time.Hour,
		Pipeline:       pulse.DefaultConfig(),
	}

	m, err := monitor.New(cfg, src, report.Multi{}, monitor.WithClock(clk))
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))

	slept, calls := clk.Slept()
	assert.Zero(t, calls)
	assert.Zero(t, slept)
	assert.Equal(t, []time.Duration{
		0, 300 * time.Millisecond, 600 * time.Millisecond, 900 * time.Millisecond, 1200 * time.Millisecond,
	}, src.reads)
}

func TestMonitorRecordsMetrics(t *testing.T) {
	clk := clock.NewManual(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rep := &stopAfter{n: 4, cancel: cancel}
	collector := &fakeCollector{}
	cfg := monitor.Config{
		SamplePeriod:   200 * time.Millisecond,
		ReportInterval: time.Second,
		Pipeline: pulse.Config{
			FilterLength:    1,
			WindowLength:    3,
			HistoryLength:   3,
			MinAmplitude:    100,
			MinBeatDistance: 400 * time.Millisecond,
		},
	}

	m, err := monitor.New(cfg, sensor.NewSynthetic(spikeTrain(), clk), rep,
		monitor.WithClock(clk), monitor.WithMetrics(collector))
	require.NoError(t, err)
	require.NoError(t, m.Run(ctx))

	require.Len(t, collector.snapshots, 4)

	var beats []pulse.Millis
	for i, s := range collector.snapshots {
		assert.Equal(t, rep.readings[i].Elapsed, s.Elapsed)
		assert.Equal(t, rep.readings[i].Available, s.Available)
		assert.Equal(t, epoch.Add(s.Elapsed.Duration()), s.Timestamp)
		for _, b := range s.Beats {
			beats = append(beats, b.Timestamp)
		}
	}
	assert.Equal(t, []pulse.Millis{1000, 1800, 2600, 3400}, beats)

	last := collector.snapshots[3]
	assert.Equal(t, 3, last.HistoryLen)
	assert.True(t, last.HasJitter)
	assert.Zero(t, last.Jitter)
}

func TestMonitorReadError(t *testing.T) {
	src := &sliceSource{err: fmt.Errorf("port unplugged")}
	cfg := monitor.Config{
		SamplePeriod:   time.Millisecond,
		ReportInterval: time.Second,
		Pipeline:       pulse.DefaultConfig(),
	}

	m, err := monitor.New(cfg, src, report.Multi{}, monitor.WithClock(clock.NewManual(epoch)))
	require.NoError(t, err)

	err = m.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrMainLoop))
	assert.True(t, errors.HasCode(err, errors.ErrReadSample))
	assert.Contains(t, err.Error(), "port unplugged")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := monitor.New(monitor.Config{Pipeline: pulse.DefaultConfig()}, &sliceSource{}, report.Multi{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))

	cfg := monitor.Config{SamplePeriod: time.Millisecond, ReportInterval: time.Second}
	_, err = monitor.New(cfg, &sliceSource{}, report.Multi{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, pulse.ErrInvalidFilterLength))
}

// lateClock oversleeps every Sleep by a fixed amount, like a loaded host.
type lateClock struct {
	*clock.Manual
	over time.Duration
}

func (c *lateClock) Sleep(d time.Duration) {
	c.Manual.Sleep(d + c.over)
}

func TestMonitorDefaultsToleratesLateSleeps(t *testing.T) {
	for _, over := range []time.Duration{0, 100 * time.Microsecond, time.Millisecond, 3 * time.Millisecond} {
		t.Run(over.String(), func(t *testing.T) {
			clk := &lateClock{Manual: clock.NewManual(epoch), over: over}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			rep := &stopAfter{n: 30, cancel: cancel}
			cfg := monitor.Config{
				SamplePeriod:   config.DefaultSamplePeriod,
				ReportInterval: config.DefaultReportInterval,
				Pipeline:       pulse.DefaultConfig(),
			}
			src := sensor.NewSynthetic(sensor.DefaultSyntheticConfig(), clk)

			m, err := monitor.New(cfg, src, rep, monitor.WithClock(clk))
			require.NoError(t, err)
			require.NoError(t, m.Run(ctx))

			require.Len(t, rep.readings, 30)
			for i, r := range rep.readings[2:] {
				assert.True(t, r.Available, "reading %d", i+2)
			}
			for i, r := range rep.readings[10:] {
				assert.InDelta(t, 75.0, float64(r.BPM), 0.5, "reading %d", i+10)
				assert.Equal(t, "BPM: 75", r.String(), "reading %d", i+10)
			}
		})
	}
}

// warmingSource reports not ready for its first readyAfter reads.
type warmingSource struct {
	sliceSource
	readyAfter int
	n          int
}

func (w *warmingSource) Read() (pulse.Sample, error) {
	w.n++
	return w.sliceSource.Read()
}

func (w *warmingSource) Ready() bool {
	return w.n > w.readyAfter
}

func TestMonitorSkipsSamplesUntilSourceReady(t *testing.T) {
	// A lone spike at 400ms is detected at 600ms if it reaches the pipeline.
	samples := []pulse.Sample{50, 50, 900, 50, 50, 50, 50, 50}

	tests := []struct {
		name       string
		readyAfter int
		want       []pulse.Millis
	}{
		{name: "ready from the start", readyAfter: 0, want: []pulse.Millis{600}},
		{name: "spike before first reading", readyAfter: 4, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewManual(epoch)
			src := &warmingSource{
				sliceSource: sliceSource{samples: append([]pulse.Sample(nil), samples...)},
				readyAfter:  tt.readyAfter,
			}
			collector := &fakeCollector{}
			cfg := monitor.Config{
				SamplePeriod:   200 * time.Millisecond,
				ReportInterval: 200 * time.Millisecond,
				Pipeline: pulse.Config{
					FilterLength:    1,
					WindowLength:    3,
					HistoryLength:   2,
					MinAmplitude:    100,
					MinBeatDistance: 0,
				},
			}

			m, err := monitor.New(cfg, src, report.Multi{}, monitor.WithClock(clk), monitor.WithMetrics(collector))
			require.NoError(t, err)
			require.NoError(t, m.Run(context.Background()))

			var beats []pulse.Millis
			for _, s := range collector.snapshots {
				for _, b := range s.Beats {
					beats = append(beats, b.Timestamp)
				}
			}
			assert.Equal(t, tt.want, beats)
		})
	}
}

type failingCollector struct {
	fakeCollector
}

func (f *failingCollector) Record(ctx context.Context, s *metrics.Snapshot) error {
	_ = f.fakeCollector.Record(ctx, s)
	return fmt.Errorf("disk full")
}

type failingReporter struct {
	calls int
}

func (f *failingReporter) Report(context.Context, report.Reading) error {
	f.calls++
	return fmt.Errorf("broken pipe")
}

func (*failingReporter) Close() error {
	return nil
}

func TestMonitorKeepsSamplingWhenCollaboratorsFail(t *testing.T) {
	clk := clock.NewManual(epoch)
	src := &sliceSource{samples: make([]pulse.Sample, 10)}
	collector := &failingCollector{}
	rep := &failingReporter{}
	cfg := monitor.Config{
		SamplePeriod:   100 * time.Millisecond,
		ReportInterval: 200 * time.Millisecond,
		Pipeline:       pulse.DefaultConfig(),
	}

	m, err := monitor.New(cfg, src, rep, monitor.WithClock(clk), monitor.WithMetrics(collector))
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background()))

	assert.Equal(t, 4, rep.calls)
	assert.Len(t, collector.snapshots, 4)
}
