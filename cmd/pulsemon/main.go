package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/pulsemon/internal/clock"
	"codeberg.org/mutker/pulsemon/internal/config"
	"codeberg.org/mutker/pulsemon/internal/errors"
	"codeberg.org/mutker/pulsemon/internal/logger"
	"codeberg.org/mutker/pulsemon/internal/metrics"
	"codeberg.org/mutker/pulsemon/internal/monitor"
	"codeberg.org/mutker/pulsemon/internal/pid"
	"codeberg.org/mutker/pulsemon/internal/report"
	"codeberg.org/mutker/pulsemon/internal/sensor"
	"github.com/spf13/pflag"
)

type app struct {
	cfg       *config.Config
	pidFile   *pid.File
	source    sensor.Source
	reporter  report.Reporter
	collector metrics.Collector
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel.String(), logger.IsService()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug().Msg("Config loaded")

	a, err := initApp(cfg)
	if err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("")
		}
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	m, err := monitor.New(monitor.Config{
		SamplePeriod:   cfg.Pulse.SamplePeriod,
		ReportInterval: cfg.Pulse.ReportInterval,
		Pipeline:       cfg.Pulse.Pipeline(),
	}, a.source, a.reporter, monitor.WithMetrics(a.collector))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create monitor")
		return
	}

	if err := m.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("")
	}
}

func initApp(cfg *config.Config) (*app, error) {
	errFactory := errors.New()
	a := &app{cfg: cfg}

	a.pidFile = pid.New(cfg.PIDFile)
	if err := a.pidFile.Acquire(); err != nil {
		return nil, err
	}
	logger.Debug().Str("path", a.pidFile.Path()).Msg("PID file written")

	source, err := openSource(cfg)
	if err != nil {
		a.cleanup()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	a.source = source

	reporters := report.Multi{report.NewConsole(os.Stdout)}
	if cfg.NATS.Enabled {
		n, err := report.ConnectNATS(cfg.NATS, logger.Default())
		if err != nil {
			a.cleanup()
			return nil, errFactory.Wrap(errors.ErrInitApp, err)
		}
		reporters = append(reporters, n)
	}
	a.reporter = reporters

	collector, err := metrics.NewService(cfg.Metrics, logger.Default())
	if err != nil {
		a.cleanup()
		return nil, errFactory.Wrap(errors.ErrInitMetrics, err)
	}
	a.collector = collector

	return a, nil
}

func openSource(cfg *config.Config) (sensor.Source, error) {
	log := logger.Default()

	switch cfg.Source.Kind {
	case sensor.KindSerial:
		return sensor.OpenSerial(cfg.Source.Path, cfg.Serial, log)
	case sensor.KindReplay:
		return sensor.OpenReplay(cfg.Source.Path, log)
	case sensor.KindSynthetic:
		return sensor.NewSynthetic(cfg.Synthetic, clock.Real{}), nil
	default:
		return nil, errors.New().WithData(sensor.ErrInvalidSource, cfg.Source.Kind)
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func (a *app) cleanup() {
	if a.collector != nil {
		if err := a.collector.Close(); err != nil {
			logger.ErrorWithCode(errors.New().Wrap(errors.ErrCloseMetrics, err)).Msg("")
		}
	}
	if a.reporter != nil {
		if err := a.reporter.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close reporters")
		}
	}
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			logger.ErrorWithCode(errors.New().Wrap(errors.ErrCloseSource, err)).Msg("")
		}
	}
	if a.pidFile != nil {
		if err := a.pidFile.Release(); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}
	logger.Info().Msg("Exiting...")
}
