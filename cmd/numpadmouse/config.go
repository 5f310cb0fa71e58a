package main

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the numpadmouse daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config.
type Config struct {
	Motion         MotionConfig         `yaml:"motion"`
	Devices        DevicesConfig        `yaml:"devices"`
	VirtualPointer VirtualPointerConfig `yaml:"virtual_pointer"`
	IPC            IPCConfig            `yaml:"ipc"`
	Status         StatusConfig         `yaml:"status"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// MotionConfig holds the tick cadence and the acceleration curve.
type MotionConfig struct {
	TickIntervalMS int    `yaml:"tick_interval_ms"`
	MinStep        int32  `yaml:"min_step"`
	MaxStep        int32  `yaml:"max_step"`
	MinPoint       uint64 `yaml:"min_point"`
	MaxPoint       uint64 `yaml:"max_point"`
}

// DevicesConfig optionally pins input devices instead of autodetecting them.
type DevicesConfig struct {
	Keyboards     []string `yaml:"keyboards,omitempty"`
	NumLockDevice string   `yaml:"numlock_device,omitempty"`
}

type VirtualPointerConfig struct {
	UinputPath        string `yaml:"uinput_path"`
	Name              string `yaml:"name"`
	NeutralOnShutdown bool   `yaml:"neutral_on_shutdown"`
}

type IPCConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SocketPath string `yaml:"socket_path"`
}

type StatusConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Path       string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Motion: MotionConfig{
			TickIntervalMS: defaultTickIntervalMS,
			MinStep:        defaultMinStep,
			MaxStep:        defaultMaxStep,
			MinPoint:       defaultMinPoint,
			MaxPoint:       defaultMaxPoint,
		},
		VirtualPointer: VirtualPointerConfig{
			UinputPath:        defaultUinputPath,
			Name:              defaultPointerName,
			NeutralOnShutdown: true,
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: defaultIPCSocket,
		},
		Status: StatusConfig{
			Enabled:    false,
			ListenAddr: defaultStatusAddr,
			Path:       defaultStatusPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries flag values that were explicitly set on the command
// line. A nil pointer means "not set"; a non-nil pointer is applied even if it
// holds a zero value.
type FlagOverrides struct {
	TickIntervalMS *int
	MinStep        *int
	MaxStep        *int
	MinPoint       *int
	MaxPoint       *int

	Keyboards     []string
	NumLockDevice *string
	UinputPath    *string

	IPCSocketPath *string
	IPCDisabled   *bool

	StatusAddr *string

	LogLevel *string
}

// Apply merges the overrides into cfg. Call Validate first: out-of-range
// step values would otherwise be truncated to int32.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.TickIntervalMS != nil {
		cfg.Motion.TickIntervalMS = *o.TickIntervalMS
	}
	if o.MinStep != nil {
		cfg.Motion.MinStep = int32(*o.MinStep)
	}
	if o.MaxStep != nil {
		cfg.Motion.MaxStep = int32(*o.MaxStep)
	}
	if o.MinPoint != nil {
		cfg.Motion.MinPoint = clampNonNegative(*o.MinPoint)
	}
	if o.MaxPoint != nil {
		cfg.Motion.MaxPoint = clampNonNegative(*o.MaxPoint)
	}

	if len(o.Keyboards) > 0 {
		cfg.Devices.Keyboards = append([]string(nil), o.Keyboards...)
	}
	if o.NumLockDevice != nil {
		cfg.Devices.NumLockDevice = *o.NumLockDevice
	}
	if o.UinputPath != nil {
		cfg.VirtualPointer.UinputPath = *o.UinputPath
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.IPCDisabled != nil && *o.IPCDisabled {
		cfg.IPC.Enabled = false
	}

	// Setting a listen address implies the status server is wanted.
	if o.StatusAddr != nil {
		cfg.Status.ListenAddr = *o.StatusAddr
		cfg.Status.Enabled = *o.StatusAddr != ""
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate rejects override values that do not fit the config field types.
func (o FlagOverrides) Validate() error {
	if o.MinStep != nil && (*o.MinStep < math.MinInt32 || *o.MinStep > math.MaxInt32) {
		return fmt.Errorf("-min-step %d is out of range", *o.MinStep)
	}
	if o.MaxStep != nil && (*o.MaxStep < math.MinInt32 || *o.MaxStep > math.MaxInt32) {
		return fmt.Errorf("-max-step %d is out of range", *o.MaxStep)
	}
	return nil
}

func clampNonNegative(v int) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Motion
	if c.Motion.TickIntervalMS <= 0 || c.Motion.TickIntervalMS > 1000 {
		return errors.New("motion.tick_interval_ms must be between 1 and 1000")
	}
	if c.Motion.MinStep < 1 {
		return errors.New("motion.min_step must be >= 1")
	}
	if c.Motion.MaxStep < c.Motion.MinStep {
		return errors.New("motion.max_step must be >= motion.min_step")
	}
	if c.Motion.MinPoint >= c.Motion.MaxPoint {
		return errors.New("motion.min_point must be < motion.max_point")
	}

	// Devices
	for i, dev := range c.Devices.Keyboards {
		if dev == "" {
			return fmt.Errorf("devices.keyboards[%d] is empty", i)
		}
	}

	// Virtual pointer
	if c.VirtualPointer.UinputPath == "" {
		return errors.New("virtual_pointer.uinput_path must not be empty")
	}
	if c.VirtualPointer.Name == "" {
		return errors.New("virtual_pointer.name must not be empty")
	}

	// IPC
	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		return errors.New("ipc.enabled is true but ipc.socket_path is empty")
	}

	// Status
	if c.Status.Enabled {
		if c.Status.ListenAddr == "" {
			return errors.New("status.enabled is true but status.listen_addr is empty")
		}
		if c.Status.Path == "" || c.Status.Path[0] != '/' {
			return errors.New("status.path must start with '/'")
		}
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToEngineConfig converts the file config into the engine's config.
func (c *Config) ToEngineConfig(initialNumLock bool) engineConfig {
	return engineConfig{
		TickInterval: time.Duration(c.Motion.TickIntervalMS) * time.Millisecond,
		Accel: AccelConfig{
			MinStep:  c.Motion.MinStep,
			MaxStep:  c.Motion.MaxStep,
			MinPoint: c.Motion.MinPoint,
			MaxPoint: c.Motion.MaxPoint,
		},
		InitialNumLock: initialNumLock,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
