// Package config provides the configuration schema, loader, and file watcher
// for the wavecore engine.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the wavecore process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps [time.Duration] so YAML values like "2s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for wavecore.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Device   DeviceConfig   `yaml:"device"`
	Workers  WorkersConfig  `yaml:"workers"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// ServerConfig holds network and logging settings for the diagnostics
// endpoint (health, metrics, spectrum websocket).
type ServerConfig struct {
	// ListenAddr is the TCP address the diagnostics server listens on
	// (e.g., ":9090").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// EngineConfig holds backend mode and buffer geometry.
type EngineConfig struct {
	// Mode is the requested backend mode: "graph-only", "hybrid-native",
	// or "native-only". Empty means graph-only.
	Mode string `yaml:"mode"`

	// RingFrames is the ring buffer capacity in frame slots. Rounded up to
	// a power of two; one slot is reserved, so usable capacity is one less.
	RingFrames int `yaml:"ring_frames"`

	// FrameSamples is the interleaved sample count per frame. Must equal
	// device.period_frames * device.channels for the native modes.
	FrameSamples int `yaml:"frame_samples"`

	// PoolBuffers is the number of pre-allocated analysis buffers.
	PoolBuffers int `yaml:"pool_buffers"`
}

// DeviceConfig holds the output device selection and stream geometry.
type DeviceConfig struct {
	// PreferredID selects a specific output device. Empty means the
	// platform default.
	PreferredID string `yaml:"preferred_id"`

	// SampleRate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the interleaved channel count.
	Channels int `yaml:"channels"`

	// PeriodFrames is the hardware callback quantum in frames.
	PeriodFrames int `yaml:"period_frames"`

	// WatchInterval is the hot-plug polling interval (e.g., "2s").
	// Zero disables hot-plug watching.
	WatchInterval Duration `yaml:"watch_interval"`
}

// WorkersConfig bounds the DSP offload pool.
type WorkersConfig struct {
	// Min and Max clamp the worker count derived from hardware concurrency.
	Min int `yaml:"min"`
	Max int `yaml:"max"`

	// QueueSize bounds the pending-task queue.
	QueueSize int `yaml:"queue_size"`
}

// AnalysisConfig holds spectrum analysis settings.
type AnalysisConfig struct {
	// FFTSize is the transform length in samples. Must be a power of two.
	FFTSize int `yaml:"fft_size"`
}

// Default returns a config with workable values for a stereo 48 kHz stream.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":9090",
			LogLevel:   LogInfo,
		},
		Engine: EngineConfig{
			Mode:         "graph-only",
			RingFrames:   64,
			FrameSamples: 256,
			PoolBuffers:  16,
		},
		Device: DeviceConfig{
			SampleRate:    48000,
			Channels:      2,
			PeriodFrames:  128,
			WatchInterval: Duration(2 * time.Second),
		},
		Workers: WorkersConfig{
			Min:       1,
			Max:       8,
			QueueSize: 64,
		},
		Analysis: AnalysisConfig{
			FFTSize: 1024,
		},
	}
}
