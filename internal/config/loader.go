package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// validModes lists recognised engine.mode values. An empty mode means
// graph-only.
var validModes = map[string]bool{
	"":              true,
	"graph-only":    true,
	"hybrid-native": true,
	"native-only":   true,
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !validModes[cfg.Engine.Mode] {
		errs = append(errs, fmt.Errorf("engine.mode %q is invalid; valid values: graph-only, hybrid-native, native-only", cfg.Engine.Mode))
	}
	if cfg.Engine.RingFrames < 0 {
		errs = append(errs, fmt.Errorf("engine.ring_frames %d must not be negative", cfg.Engine.RingFrames))
	}
	if cfg.Engine.FrameSamples < 0 {
		errs = append(errs, fmt.Errorf("engine.frame_samples %d must not be negative", cfg.Engine.FrameSamples))
	}
	if cfg.Engine.PoolBuffers < 0 {
		errs = append(errs, fmt.Errorf("engine.pool_buffers %d must not be negative", cfg.Engine.PoolBuffers))
	}

	if cfg.Device.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("device.sample_rate %d must not be negative", cfg.Device.SampleRate))
	}
	if cfg.Device.Channels < 0 {
		errs = append(errs, fmt.Errorf("device.channels %d must not be negative", cfg.Device.Channels))
	}
	if cfg.Device.PeriodFrames < 0 {
		errs = append(errs, fmt.Errorf("device.period_frames %d must not be negative", cfg.Device.PeriodFrames))
	}

	// Native modes drain exactly one ring slot per hardware period; a
	// geometry mismatch would corrupt the frame boundaries.
	if cfg.Engine.Mode == "hybrid-native" || cfg.Engine.Mode == "native-only" {
		want := cfg.Device.PeriodFrames * cfg.Device.Channels
		if cfg.Engine.FrameSamples != 0 && want != 0 && cfg.Engine.FrameSamples != want {
			errs = append(errs, fmt.Errorf("engine.frame_samples %d must equal device.period_frames * device.channels (%d) for mode %q",
				cfg.Engine.FrameSamples, want, cfg.Engine.Mode))
		}
	}

	if cfg.Workers.Min < 0 {
		errs = append(errs, fmt.Errorf("workers.min %d must not be negative", cfg.Workers.Min))
	}
	if cfg.Workers.Max < 0 {
		errs = append(errs, fmt.Errorf("workers.max %d must not be negative", cfg.Workers.Max))
	}
	if cfg.Workers.Min > 0 && cfg.Workers.Max > 0 && cfg.Workers.Min > cfg.Workers.Max {
		errs = append(errs, fmt.Errorf("workers.min %d exceeds workers.max %d", cfg.Workers.Min, cfg.Workers.Max))
	}
	if cfg.Workers.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("workers.queue_size %d must not be negative", cfg.Workers.QueueSize))
	}

	if s := cfg.Analysis.FFTSize; s != 0 && (s < 0 || s&(s-1) != 0) {
		errs = append(errs, fmt.Errorf("analysis.fft_size %d must be a power of two", s))
	}

	return errors.Join(errs...)
}
