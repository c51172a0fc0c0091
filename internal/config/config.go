package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/pulsemon/internal/errors"
	"codeberg.org/mutker/pulsemon/internal/metrics"
	"codeberg.org/mutker/pulsemon/internal/pulse"
	"codeberg.org/mutker/pulsemon/internal/report"
	"codeberg.org/mutker/pulsemon/internal/sensor"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel       = LogLevelInfo
	DefaultSamplePeriod   = 20 * time.Millisecond
	DefaultReportInterval = time.Second
	DefaultSourceKind     = sensor.KindSerial
	DefaultSourcePath     = "/dev/ttyUSB0"

	defaultEnvPrefix   = "PULSEMON"
	configEnvVar       = "PULSEMON_CONFIG"
	configName         = "pulsemon"
	configType         = "toml"
	defaultConfigDir   = "/etc"
	defaultPIDFileName = "pulsemon.pid"
)

type Config struct {
	LogLevel  LogLevel               `mapstructure:"log_level"`
	PIDFile   string                 `mapstructure:"pid_file"`
	Pulse     PulseConfig            `mapstructure:"pulse"`
	Source    SourceConfig           `mapstructure:"source"`
	Serial    sensor.PortOptions     `mapstructure:"serial"`
	Synthetic sensor.SyntheticConfig `mapstructure:"synthetic"`
	Metrics   metrics.Config         `mapstructure:"metrics"`
	NATS      report.NATSConfig      `mapstructure:"nats"`
}

// PulseConfig holds the sampling cadence and detection parameters. All time
// thresholds are set independently of the sample period.
type PulseConfig struct {
	SamplePeriod    time.Duration `mapstructure:"sample_period"`
	ReportInterval  time.Duration `mapstructure:"report_interval"`
	FilterLength    int           `mapstructure:"filter_length"`
	WindowLength    int           `mapstructure:"window_length"`
	HistoryLength   int           `mapstructure:"history_length"`
	MinAmplitude    uint32        `mapstructure:"min_amplitude"`
	MinBeatDistance time.Duration `mapstructure:"min_beat_distance"`
}

// Pipeline returns the detection parameters.
func (p PulseConfig) Pipeline() pulse.Config {
	return pulse.Config{
		FilterLength:    p.FilterLength,
		WindowLength:    p.WindowLength,
		HistoryLength:   p.HistoryLength,
		MinAmplitude:    pulse.Sample(p.MinAmplitude),
		MinBeatDistance: p.MinBeatDistance,
	}
}

type SourceConfig struct {
	Kind sensor.Kind `mapstructure:"kind"`
	Path string      `mapstructure:"path"`
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"log-level":         "log_level",
	"pid-file":          "pid_file",
	"sample-period":     "pulse.sample_period",
	"report-interval":   "pulse.report_interval",
	"filter-length":     "pulse.filter_length",
	"window-length":     "pulse.window_length",
	"history-length":    "pulse.history_length",
	"min-amplitude":     "pulse.min_amplitude",
	"min-beat-distance": "pulse.min_beat_distance",
	"source":            "source.kind",
	"source-path":       "source.path",
	"baud":              "serial.baud_rate",
	"metrics":           "metrics.enabled",
	"metrics-db":        "metrics.db_path",
	"nats":              "nats.enabled",
	"nats-url":          "nats.url",
	"nats-subject":      "nats.subject",
}

func setDefaults(v *viper.Viper) {
	pc := pulse.DefaultConfig()
	syn := sensor.DefaultSyntheticConfig()
	mc := metrics.DefaultConfig()
	nc := report.DefaultNATSConfig()

	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("pid_file", filepath.Join(os.TempDir(), defaultPIDFileName))

	v.SetDefault("pulse.sample_period", DefaultSamplePeriod)
	v.SetDefault("pulse.report_interval", DefaultReportInterval)
	v.SetDefault("pulse.filter_length", pc.FilterLength)
	v.SetDefault("pulse.window_length", pc.WindowLength)
	v.SetDefault("pulse.history_length", pc.HistoryLength)
	v.SetDefault("pulse.min_amplitude", uint32(pc.MinAmplitude))
	v.SetDefault("pulse.min_beat_distance", pc.MinBeatDistance)

	v.SetDefault("source.kind", string(DefaultSourceKind))
	v.SetDefault("source.path", DefaultSourcePath)

	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "N")

	v.SetDefault("synthetic.beat_interval", syn.BeatInterval)
	v.SetDefault("synthetic.spike_width", syn.SpikeWidth)
	v.SetDefault("synthetic.amplitude", syn.Amplitude)
	v.SetDefault("synthetic.baseline", syn.Baseline)
	v.SetDefault("synthetic.noise", syn.Noise)
	v.SetDefault("synthetic.seed", syn.Seed)

	v.SetDefault("metrics.enabled", mc.Enabled)
	v.SetDefault("metrics.db_path", mc.DBPath)
	v.SetDefault("metrics.backup_dir", "")
	v.SetDefault("metrics.batch_size", mc.BatchSize)
	v.SetDefault("metrics.batch_timeout", mc.BatchTimeout)

	v.SetDefault("nats.enabled", nc.Enabled)
	v.SetDefault("nats.url", nc.URL)
	v.SetDefault("nats.subject", nc.Subject)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	pc := pulse.DefaultConfig()

	fs.String("config", "", "Path to the configuration file")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.String("pid-file", filepath.Join(os.TempDir(), defaultPIDFileName), "Path to the PID file")

	fs.Duration("sample-period", DefaultSamplePeriod, "Target time between sensor samples")
	fs.Duration("report-interval", DefaultReportInterval, "Time between heart rate reports")
	fs.Int("filter-length", pc.FilterLength, "Number of raw samples in the smoothing average")
	fs.Int("window-length", pc.WindowLength, "Number of smoothed samples in the peak window")
	fs.Int("history-length", pc.HistoryLength, "Number of heartbeats used for the BPM estimate")
	fs.Uint32("min-amplitude", uint32(pc.MinAmplitude), "Minimum smoothed value for a peak")
	fs.Duration("min-beat-distance", pc.MinBeatDistance, "Minimum time between two heartbeats")

	fs.String("source", string(DefaultSourceKind), "Sample source (serial, replay, synthetic)")
	fs.String("source-path", DefaultSourcePath, "Serial port or replay file (- for stdin)")
	fs.Int("baud", 115200, "Serial baud rate")

	fs.Bool("metrics", false, "Record readings and heartbeats to the metrics database")
	fs.String("metrics-db", metrics.DefaultConfig().DBPath, "Path to the metrics database")

	fs.Bool("nats", false, "Publish readings to NATS")
	fs.String("nats-url", report.DefaultNATSConfig().URL, "NATS server URL")
	fs.String("nats-subject", report.DefaultNATSConfig().Subject, "NATS subject for readings")

	return fs
}

// Load builds the configuration from defaults, the configuration file, the
// environment and the command line, in increasing order of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		envPrefix:  defaultEnvPrefix,
		searchDirs: []string{defaultConfigDir},
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	// Locate the configuration file
	configPath := o.configPath
	if path, _ := fs.GetString("config"); path != "" {
		configPath = path
	}
	if configPath == "" {
		configPath = os.Getenv(configEnvVar)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType(configType)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		for _, dir := range o.searchDirs {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration once at startup.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Pulse.SamplePeriod <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Field string
			Value time.Duration
		}{
			Field: "pulse.sample_period",
			Value: c.Pulse.SamplePeriod,
		})
	}
	if c.Pulse.ReportInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Field string
			Value time.Duration
		}{
			Field: "pulse.report_interval",
			Value: c.Pulse.ReportInterval,
		})
	}

	if err := c.Pulse.Pipeline().Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if !c.Source.Kind.IsValid() {
		return errFactory.WithData(sensor.ErrInvalidSource, c.Source.Kind)
	}
	if c.Source.Kind != sensor.KindSynthetic && c.Source.Path == "" {
		return errFactory.WithData(sensor.ErrInvalidSource, "missing source path")
	}
	if c.Source.Kind == sensor.KindSerial {
		if _, err := c.Serial.Normalize(); err != nil {
			return errFactory.Wrap(sensor.ErrInvalidPortOpts, err)
		}
	}

	if err := c.Metrics.Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if err := c.NATS.Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	return nil
}
