package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"levelalarm/internal/alarm"
	"levelalarm/internal/config"
	"levelalarm/internal/levelcontrol"
	"levelalarm/internal/light"
	"levelalarm/internal/logger"
	"levelalarm/internal/orientation"
	"levelalarm/internal/speed"
	"levelalarm/internal/telemetry"
	"levelalarm/internal/web"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "levelalarm",
		Short:        "Out-of-level alarm daemon for moving vehicles",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "./dev.yaml", "path to YAML config")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// teardown collects deinit steps in acquisition order and runs them in
// reverse. Every result is logged; failures never stop the remaining steps.
type teardown struct {
	log   *zap.SugaredLogger
	steps []teardownStep
}

type teardownStep struct {
	name string
	fn   func() error
}

func (t *teardown) add(name string, fn func() error) {
	t.steps = append(t.steps, teardownStep{name: name, fn: fn})
}

func (t *teardown) run() {
	for i := len(t.steps) - 1; i >= 0; i-- {
		step := t.steps[i]
		if err := step.fn(); err != nil {
			t.log.Warnw("teardown step failed", "step", step.name, "err", err)
		} else {
			t.log.Infow("teardown step done", "step", step.name)
		}
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	level, ok := logger.ParseLevel(cfg.Log.Level)
	log := logger.New(zap.NewAtomicLevelAt(level))
	defer func() { _ = log.Sync() }()
	if !ok {
		log.Warnw("unknown log level, using info", "level", cfg.Log.Level)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Collaborators come up in acquisition order. Any failure falls through
	// to the same teardown path, which unwinds whatever already started in
	// reverse order.
	cleanup := &teardown{log: log}
	defer cleanup.run()

	var orient levelcontrol.OrientationSource
	if cfg.IMU.Mock {
		orient = orientation.NewMockSource()
		log.Infow("using mock orientation source")
	} else {
		orient, err = orientation.NewIMUSource(cfg.IMU.SPIDevice, cfg.IMU.CSPin)
		if err != nil {
			return fmt.Errorf("imu init failed: %w", err)
		}
	}

	cell := &speed.Cell{}
	var speedReader levelcontrol.SpeedReader = cell
	var gpsSvc *speed.Service
	if cfg.GPS.Mock {
		speedReader = speed.NewMockReader()
		log.Infow("using mock speed source")
	} else {
		gpsSvc = speed.New(speed.Config{Device: cfg.GPS.Device, Baud: cfg.GPS.Baud}, cell)
		if err := gpsSvc.Start(ctx); err != nil {
			return fmt.Errorf("gps init failed: %w", err)
		}
		cleanup.add("gps", gpsSvc.Close)
	}

	var sensor light.Sensor
	if cfg.Light.Mock {
		sensor = light.NewMockSensor()
		log.Infow("using mock light sensor")
	} else {
		sensor, err = light.NewADS1115Sensor(cfg.Light.I2CBus)
		if err != nil {
			return fmt.Errorf("light sensor init failed: %w", err)
		}
	}
	cleanup.add("light", sensor.Close)

	alarmSvc := alarm.New(alarm.Config{
		Backend:        cfg.Alarm.Backend,
		Pin:            cfg.Alarm.Pin,
		PWMFrequencyHz: cfg.Alarm.PWMFrequencyHz,
		FlashPeriod:    cfg.Alarm.FlashPeriod,
		MaxDuty:        cfg.Brightness.MaxDuty,
	})
	if err := alarmSvc.Start(ctx); err != nil {
		return fmt.Errorf("alarm init failed: %w", err)
	}
	cleanup.add("alarm", func() error { alarmSvc.Close(); return nil })

	var sinks []levelcontrol.Sink
	if cfg.Telemetry.Enable {
		pub := telemetry.New(telemetry.Config{
			Broker:   cfg.Telemetry.Broker,
			ClientID: cfg.Telemetry.ClientID,
			Topic:    cfg.Telemetry.Topic,
		}, log)
		if err := pub.Connect(); err != nil {
			return fmt.Errorf("telemetry init failed: %w", err)
		}
		cleanup.add("telemetry", pub.Close)
		sinks = append(sinks, pub)
	}
	var bcast *web.Broadcaster
	if cfg.Web.Enable {
		bcast = web.NewBroadcaster()
		sinks = append(sinks, bcast)
	}

	loop := levelcontrol.New(levelcontrol.Config{
		Detector:     detectorConfig(cfg.Monitor),
		Brightness:   brightnessConfig(cfg.Brightness),
		TickInterval: cfg.Loop.Interval,
	}, log, orient, speedReader, sensor, alarmSvc, sinks...)
	if err := loop.Start(ctx); err != nil {
		return fmt.Errorf("control loop start failed: %w", err)
	}
	cleanup.add("loop", func() error { loop.Close(); return nil })

	if cfg.Web.Enable {
		statusFn := func() web.Status {
			return web.Status{
				Tick:  loop.Snapshot(),
				Alarm: alarmSvc.Snapshot(),
				Speed: gpsSvc.Snapshot(),
			}
		}
		srv := web.NewServer(cfg.Web.Listen, statusFn, bcast, log)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("web server start failed: %w", err)
		}
		cleanup.add("web", srv.Close)
	}

	log.Infow("levelalarm running",
		"threshold_angle_deg", cfg.Monitor.ThresholdAngleDeg,
		"speed_band_ms", []float64{cfg.Monitor.LowerSpeedMS, cfg.Monitor.UpperSpeedMS},
		"tick_interval", cfg.Loop.Interval,
		"flash_period", cfg.Alarm.FlashPeriod,
	)

	<-ctx.Done()
	log.Infow("levelalarm stopping")
	return nil
}

func detectorConfig(m config.MonitorConfig) levelcontrol.DetectorConfig {
	recovery, _ := levelcontrol.ParseRecoveryMode(m.Recovery)
	return levelcontrol.DetectorConfig{
		ThresholdDeg: m.ThresholdAngleDeg,
		LowerSpeedMS: m.LowerSpeedMS,
		UpperSpeedMS: m.UpperSpeedMS,
		Recovery:     recovery,
	}
}

func brightnessConfig(b config.BrightnessConfig) levelcontrol.BrightnessConfig {
	return levelcontrol.BrightnessConfig{
		ZeroOffset: b.ZeroOffset,
		Span:       b.Span,
		Floor:      b.Floor,
		MaxDuty:    b.MaxDuty,
	}
}
