// Package device defines the audio device manager abstraction: enumeration of
// hardware input/output devices, capability descriptors, and stream lifecycle.
//
// The two primary abstractions are:
//
//   - [Manager] — enumerates devices and opens hardware streams.
//   - [Stream] — an open hardware stream with an idempotent stop handshake.
//
// The manager does not itself move audio; it registers the data callback that
// the engine's backend wires to the ring-buffer consumer side. The concrete
// implementation on native targets is [Malgo] (miniaudio); tests use the mock
// subpackage.
//
// This package lives under pkg/ because the (external) settings UI consumes
// descriptors and enumeration directly.
package device

import (
	"errors"
	"time"
)

// Direction distinguishes capture from playback devices.
type Direction int

const (
	// Input identifies capture (microphone) devices.
	Input Direction = iota

	// Output identifies playback devices.
	Output
)

// String returns the human-readable name of the direction.
func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// Sentinel errors for the operations defined on [Manager] and [Stream].
var (
	// ErrEnumeration indicates the platform audio subsystem is unavailable.
	ErrEnumeration = errors.New("device: platform audio subsystem unavailable")

	// ErrDeviceNotFound indicates a device ID from a previous enumeration is
	// stale. Callers should re-enumerate and retry.
	ErrDeviceNotFound = errors.New("device: device not found")

	// ErrUnsupportedConfig indicates the requested sample rate / channel
	// combination is outside the device's reported range.
	ErrUnsupportedConfig = errors.New("device: unsupported stream configuration")

	// ErrStreamOpen indicates the platform failed to open or start a stream.
	// The wrapped cause carries the platform-specific diagnostic.
	ErrStreamOpen = errors.New("device: stream open failed")

	// ErrClosed indicates the manager has been closed.
	ErrClosed = errors.New("device: manager closed")
)

// Descriptor is an immutable snapshot of one device taken at enumeration
// time. It may go stale on hot-plug; callers must re-enumerate rather than
// assume descriptors remain valid, and must key on ID, not position —
// enumeration order carries no guarantee across calls.
type Descriptor struct {
	// ID uniquely identifies the device for [Manager.Open]. Stable for the
	// lifetime of the device connection, not across re-plugs.
	ID string

	// Name is the human-readable device name.
	Name string

	// Direction reports whether this is a capture or playback device.
	Direction Direction

	// MinSampleRate and MaxSampleRate bound the supported rates in Hz.
	MinSampleRate int
	MaxSampleRate int

	// MinChannels and MaxChannels bound the supported channel counts.
	MinChannels int
	MaxChannels int

	// Default marks the platform's default device for its direction.
	Default bool
}

// Supports reports whether cfg falls within the descriptor's advertised
// sample-rate and channel ranges.
func (d Descriptor) Supports(cfg StreamConfig) bool {
	if cfg.SampleRate < d.MinSampleRate || cfg.SampleRate > d.MaxSampleRate {
		return false
	}
	if cfg.Channels < d.MinChannels || cfg.Channels > d.MaxChannels {
		return false
	}
	return true
}

// StreamConfig describes the stream the caller wants to open.
type StreamConfig struct {
	// DeviceID selects the device; empty means the platform default.
	DeviceID string

	// SampleRate in Hz.
	SampleRate int

	// Channels is the interleaved channel count.
	Channels int

	// PeriodFrames is the hardware quantum in frames per callback. Zero lets
	// the platform choose.
	PeriodFrames int
}

// DataCallback is invoked on the hardware thread once per quantum. out is the
// interleaved float32 buffer to fill; frames is the quantum length in frames.
// The callback must not allocate, lock, or block.
type DataCallback func(out []float32, frames int)

// Stream is an open hardware stream.
type Stream interface {
	// Start begins hardware callbacks.
	Start() error

	// Stop halts the stream. It is idempotent and synchronous: when Stop
	// returns, the data callback is guaranteed not to be invoked again, even
	// if it was mid-execution on the hardware thread when Stop was called.
	Stop() error

	// Started reports whether the stream is currently running.
	Started() bool

	// Latency estimates the output latency of the open stream.
	Latency() time.Duration

	// Close stops the stream if needed and releases the device handle.
	// The stream is unusable afterwards.
	Close() error
}

// Manager enumerates devices and opens streams. Implementations must be safe
// for concurrent use.
type Manager interface {
	// Enumerate returns a snapshot of the devices for the given direction.
	// Fails with [ErrEnumeration] when the platform audio subsystem is
	// unavailable.
	Enumerate(dir Direction) ([]Descriptor, error)

	// Open validates cfg against the selected device's capabilities and opens
	// a playback stream delivering data via cb. Fails with
	// [ErrDeviceNotFound] for stale IDs, [ErrUnsupportedConfig] for
	// out-of-range configs, and [ErrStreamOpen] for platform failures.
	// The stream is not started; call [Stream.Start].
	Open(cfg StreamConfig, cb DataCallback) (Stream, error)

	// Close releases the platform audio context. Open streams must be closed
	// first.
	Close() error
}
