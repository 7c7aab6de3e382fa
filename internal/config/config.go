package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/TurretGo/internal/hw/transport"
	"github.com/cjeanneret/TurretGo/internal/logic/aim"
	"github.com/cjeanneret/TurretGo/internal/logic/geometry"
)

// MaxConfigFileBytes bounds the size of a config file accepted by Load.
const MaxConfigFileBytes = 1 << 20

// DeviceConfig selects the link to the launcher.
type DeviceConfig struct {
	Name       string              `yaml:"name"`        // shown in the status API
	Transport  string              `yaml:"transport"`   // hid, serial, gpio or mock
	HIDRaw     string              `yaml:"hidraw"`      // e.g. /dev/hidraw0
	SerialPort string              `yaml:"serial_port"` // e.g. /dev/ttyUSB0
	SerialBaud int                 `yaml:"serial_baud"`
	Relay      transport.RelayPins `yaml:"relay"`     // gpio transport only
	MockGPIO   bool                `yaml:"mock_gpio"` // gpio transport against the mock driver
}

// MotionConfig holds timing parameters of the motion layer.
type MotionConfig struct {
	SliceMs           int  `yaml:"slice_ms"`           // interleave slice (default 50)
	FirePulseMs       int  `yaml:"fire_pulse_ms"`      // 0 = no auto-stop after Fire
	SettleMarginMs    int  `yaml:"settle_margin_ms"`   // added to the calibration wait (default 500)
	AllowUncalibrated bool `yaml:"allow_uncalibrated"` // absolute moves before calibration only warn
}

// WebConfig configures the status/control API.
type WebConfig struct {
	Port int `yaml:"port"` // 0 = disabled unless -web is given
}

// PatrolConfig is the default sweep used by the patrol command.
type PatrolConfig struct {
	YawSpan   float64 `yaml:"yaw_span"`   // total horizontal degrees (default 90)
	PitchSpan float64 `yaml:"pitch_span"` // total vertical degrees (default 10)
	YawStep   float64 `yaml:"yaw_step"`   // max degrees between columns (default 30)
	PitchStep float64 `yaml:"pitch_step"` // max degrees between rows (default 10)
	DwellMs   int     `yaml:"dwell_ms"`   // pause at each point (default 1000)
	Fire      bool    `yaml:"fire"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int          `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	Patrol     PatrolConfig `yaml:"patrol"`
}

// Config aggregates all application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Limits   aim.Limits     `yaml:"limits"`
	Motion   MotionConfig   `yaml:"motion"`
	Web      WebConfig      `yaml:"web"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Overrides are read from the environment and win over the file.
// Empty strings and negative numbers mean "not set".
type Overrides struct {
	Transport  string `env:"TURRET_TRANSPORT"`
	HIDRaw     string `env:"TURRET_HIDRAW"`
	SerialPort string `env:"TURRET_SERIAL_PORT"`
	DebugLevel int    `env:"TURRET_DEBUG_LEVEL" envDefault:"-1"`
	WebPort    int    `env:"TURRET_WEB_PORT" envDefault:"-1"`
}

// ValidateConfigPath accepts only .yaml files directly inside a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path must not leave the configs directory: %s", path)
		}
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config file must be in a configs/ directory: %s", path)
	}
	return nil
}

// Load reads a YAML file, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Device.Name == "" {
		c.Device.Name = "turret"
	}
	if c.Device.Transport == "" {
		c.Device.Transport = transport.KindMock
	}
	switch c.Device.Transport {
	case transport.KindHID:
		if c.Device.HIDRaw == "" {
			c.Device.HIDRaw = "/dev/hidraw0"
		}
	case transport.KindSerial:
		if c.Device.SerialPort == "" {
			return fmt.Errorf("device.serial_port is required for the serial transport")
		}
	case transport.KindRelay, transport.KindMock:
	default:
		return fmt.Errorf("device.transport must be one of hid, serial, gpio, mock; got %q", c.Device.Transport)
	}
	if c.Device.SerialBaud <= 0 {
		c.Device.SerialBaud = transport.DefaultBaud
	}

	if c.Limits == (aim.Limits{}) {
		c.Limits = aim.DefaultLimits()
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}

	if c.Motion.SliceMs <= 0 {
		c.Motion.SliceMs = 50
	}
	if c.Motion.FirePulseMs < 0 {
		return fmt.Errorf("motion.fire_pulse_ms must be >= 0, got %d", c.Motion.FirePulseMs)
	}
	if c.Motion.SettleMarginMs <= 0 {
		c.Motion.SettleMarginMs = 500
	}

	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port must be 0-65535, got %d", c.Web.Port)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}

	p := &c.Defaults.Patrol
	if p.YawSpan < 0 || p.PitchSpan < 0 {
		return fmt.Errorf("defaults.patrol spans must be >= 0")
	}
	if p.YawSpan == 0 {
		p.YawSpan = 90
	}
	if p.PitchSpan == 0 {
		p.PitchSpan = 10
	}
	if p.YawStep <= 0 {
		p.YawStep = 30
	}
	if p.PitchStep <= 0 {
		p.PitchStep = 10
	}
	if p.DwellMs <= 0 {
		p.DwellMs = 1000
	}
	return nil
}

// Validate fills unset fields with defaults and checks the result. Call it
// again after changing fields by hand.
func (c *Config) Validate() error {
	return c.applyDefaults()
}

// ApplyEnv overlays TURRET_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if o.Transport != "" {
		c.Device.Transport = o.Transport
	}
	if o.HIDRaw != "" {
		c.Device.HIDRaw = o.HIDRaw
	}
	if o.SerialPort != "" {
		c.Device.SerialPort = o.SerialPort
	}
	if o.DebugLevel >= 0 {
		c.Defaults.DebugLevel = o.DebugLevel
	}
	if o.WebPort >= 0 {
		c.Web.Port = o.WebPort
	}
	return c.applyDefaults()
}

// TransportConfig returns the parameters for transport.Open.
func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		Kind:       c.Device.Transport,
		HIDRawPath: c.Device.HIDRaw,
		SerialPort: c.Device.SerialPort,
		SerialBaud: c.Device.SerialBaud,
		Relay:      c.Device.Relay,
		MockGPIO:   c.Device.MockGPIO,
	}
}

// AimOptions returns the controller options.
func (c *Config) AimOptions() aim.Options {
	return aim.Options{
		Name:              c.Device.Name,
		Limits:            c.Limits,
		SettleMargin:      c.SettleMargin(),
		AllowUncalibrated: c.Motion.AllowUncalibrated,
	}
}

// SweepRequest returns the default patrol area centred on the origin.
func (c *Config) SweepRequest() geometry.SweepRequest {
	p := c.Defaults.Patrol
	return geometry.SweepRequest{
		YawSpan:   p.YawSpan,
		PitchSpan: p.PitchSpan,
		YawStep:   p.YawStep,
		PitchStep: p.PitchStep,
	}
}

// Slice returns the interleave slice length.
func (c *Config) Slice() time.Duration {
	return time.Duration(c.Motion.SliceMs) * time.Millisecond
}

// FirePulse returns how long Fire is held before Stop (0 = never).
func (c *Config) FirePulse() time.Duration {
	return time.Duration(c.Motion.FirePulseMs) * time.Millisecond
}

// SettleMargin returns the margin added to the calibration wait.
func (c *Config) SettleMargin() time.Duration {
	return time.Duration(c.Motion.SettleMarginMs) * time.Millisecond
}

// Dwell returns the patrol pause at each point.
func (c *Config) Dwell() time.Duration {
	return time.Duration(c.Defaults.Patrol.DwellMs) * time.Millisecond
}
