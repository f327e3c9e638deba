package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Loop       LoopConfig       `yaml:"loop"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Brightness BrightnessConfig `yaml:"brightness"`
	Alarm      AlarmConfig      `yaml:"alarm"`
	IMU        IMUConfig        `yaml:"imu"`
	GPS        GPSConfig        `yaml:"gps"`
	Light      LightConfig      `yaml:"light"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Web        WebConfig        `yaml:"web"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type LoopConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type MonitorConfig struct {
	ThresholdAngleDeg float64 `yaml:"threshold_angle_deg"`
	LowerSpeedMS      float64 `yaml:"lower_speed_ms"`
	UpperSpeedMS      float64 `yaml:"upper_speed_ms"`
	// Recovery is "band-exit" (alarm clears when the tilt settles and the
	// speed leaves the armed band) or "latched" (alarm stays on until
	// restart).
	Recovery string `yaml:"recovery"`
}

type BrightnessConfig struct {
	ZeroOffset int     `yaml:"zero_offset"`
	Span       float64 `yaml:"span"`
	Floor      float64 `yaml:"floor"`
	MaxDuty    int     `yaml:"max_duty"`
}

type AlarmConfig struct {
	Backend        string        `yaml:"backend"`
	Pin            int           `yaml:"pin"`
	PWMFrequencyHz int           `yaml:"pwm_frequency_hz"`
	FlashPeriod    time.Duration `yaml:"flash_period"`
}

type IMUConfig struct {
	Mock      bool   `yaml:"mock"`
	SPIDevice string `yaml:"spi_device"`
	CSPin     string `yaml:"cs_pin"`
}

type GPSConfig struct {
	Mock   bool   `yaml:"mock"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type LightConfig struct {
	Mock   bool   `yaml:"mock"`
	I2CBus string `yaml:"i2c_bus"`
}

type TelemetryConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Loop.Interval <= 0 {
		cfg.Loop.Interval = 600 * time.Millisecond
	}

	if cfg.Monitor.ThresholdAngleDeg == 0 {
		cfg.Monitor.ThresholdAngleDeg = 4.0
	}
	if cfg.Monitor.ThresholdAngleDeg < 0 {
		return Config{}, fmt.Errorf("monitor.threshold_angle_deg must be >= 0")
	}
	if cfg.Monitor.UpperSpeedMS == 0 {
		cfg.Monitor.UpperSpeedMS = 10.0
	}
	if cfg.Monitor.LowerSpeedMS == 0 {
		cfg.Monitor.LowerSpeedMS = 2.0
	}
	if cfg.Monitor.LowerSpeedMS < 0 || cfg.Monitor.UpperSpeedMS < 0 {
		return Config{}, fmt.Errorf("monitor speed bounds must be >= 0")
	}
	if cfg.Monitor.LowerSpeedMS > cfg.Monitor.UpperSpeedMS {
		return Config{}, fmt.Errorf("monitor.lower_speed_ms must be <= monitor.upper_speed_ms")
	}
	switch cfg.Monitor.Recovery {
	case "", "band-exit", "latched":
	default:
		return Config{}, fmt.Errorf("monitor.recovery must be 'band-exit' or 'latched'")
	}

	if cfg.Brightness.ZeroOffset == 0 {
		cfg.Brightness.ZeroOffset = 500
	}
	if cfg.Brightness.Span == 0 {
		cfg.Brightness.Span = 2598.0
	}
	if cfg.Brightness.Span < 0 {
		return Config{}, fmt.Errorf("brightness.span must be > 0")
	}
	if cfg.Brightness.Floor == 0 {
		cfg.Brightness.Floor = 0.1
	}
	if cfg.Brightness.Floor < 0 || cfg.Brightness.Floor > 1 {
		return Config{}, fmt.Errorf("brightness.floor must be within [0, 1]")
	}
	if cfg.Brightness.MaxDuty == 0 {
		cfg.Brightness.MaxDuty = 1023
	}
	if cfg.Brightness.MaxDuty < 0 {
		return Config{}, fmt.Errorf("brightness.max_duty must be > 0")
	}

	if cfg.Alarm.Backend == "" {
		cfg.Alarm.Backend = "pwm"
	}
	switch cfg.Alarm.Backend {
	case "pwm", "gpio", "mock":
	default:
		return Config{}, fmt.Errorf("alarm.backend must be 'pwm', 'gpio' or 'mock'")
	}
	if cfg.Alarm.Pin == 0 {
		cfg.Alarm.Pin = 18
	}
	if cfg.Alarm.PWMFrequencyHz == 0 {
		cfg.Alarm.PWMFrequencyHz = 5000
	}
	if cfg.Alarm.FlashPeriod <= 0 {
		cfg.Alarm.FlashPeriod = 2 * time.Second
	}
	// If the loop ticks land exactly on the flash phase, ambient light always
	// gets sampled at the same point of the flash cycle and the duty can stop
	// tracking daylight. Keep the cadences incommensurate.
	if cfg.Alarm.FlashPeriod%cfg.Loop.Interval == 0 {
		return Config{}, fmt.Errorf("loop.interval must not divide alarm.flash_period evenly")
	}

	if cfg.IMU.SPIDevice == "" {
		cfg.IMU.SPIDevice = "/dev/spidev0.0"
	}
	if cfg.IMU.CSPin == "" {
		cfg.IMU.CSPin = "22"
	}

	if cfg.GPS.Device == "" {
		cfg.GPS.Device = "/dev/serial0"
	}
	if cfg.GPS.Baud == 0 {
		cfg.GPS.Baud = 9600
	}

	if cfg.Telemetry.Enable && cfg.Telemetry.Broker == "" {
		return Config{}, fmt.Errorf("telemetry.broker is required when telemetry.enable is true")
	}
	if cfg.Telemetry.ClientID == "" {
		cfg.Telemetry.ClientID = "levelalarm"
	}
	if cfg.Telemetry.Topic == "" {
		cfg.Telemetry.Topic = "levelalarm/tick"
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	return cfg, nil
}
