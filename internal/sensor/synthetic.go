package sensor

import (
	"math/rand/v2"
	"time"

	"codeberg.org/mutker/pulsemon/internal/clock"
	"codeberg.org/mutker/pulsemon/internal/pulse"
)

// SyntheticConfig shapes the generated pulse train.
type SyntheticConfig struct {
	BeatInterval time.Duration `mapstructure:"beat_interval"`
	SpikeWidth   time.Duration `mapstructure:"spike_width"`
	Amplitude    uint32        `mapstructure:"amplitude"`
	Baseline     uint32        `mapstructure:"baseline"`
	Noise        uint32        `mapstructure:"noise"`
	Seed         uint64        `mapstructure:"seed"`
}

func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		BeatInterval: 800 * time.Millisecond,
		SpikeWidth:   100 * time.Millisecond,
		Amplitude:    800,
		Baseline:     300,
		Noise:        40,
		Seed:         1,
	}
}

// Synthetic produces a spike of Amplitude at the start of every beat
// interval over a noisy baseline. The phase follows the clock, so a sampling
// loop that runs late still sees beats at the right times.
type Synthetic struct {
	cfg   SyntheticConfig
	clk   clock.Clock
	start time.Time
	rng   *rand.Rand
}

func NewSynthetic(cfg SyntheticConfig, clk clock.Clock) *Synthetic {
	if cfg.BeatInterval <= 0 {
		cfg.BeatInterval = DefaultSyntheticConfig().BeatInterval
	}
	return &Synthetic{
		cfg:   cfg,
		clk:   clk,
		start: clk.Now(),
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

func (s *Synthetic) Read() (pulse.Sample, error) {
	phase := s.clk.Since(s.start) % s.cfg.BeatInterval
	if phase < s.cfg.SpikeWidth {
		return pulse.Sample(s.cfg.Amplitude), nil
	}

	v := s.cfg.Baseline
	if s.cfg.Noise > 0 {
		v += s.rng.Uint32N(s.cfg.Noise + 1)
	}
	return pulse.Sample(v), nil
}

func (*Synthetic) Close() error {
	return nil
}
