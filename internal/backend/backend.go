// Package backend selects and drives the audio output path.
//
// Three concrete backends implement one capability interface: graph-only
// (frames terminate in the processing graph, no hardware), hybrid (graph
// output bridged into a native hardware stream through the ring buffer), and
// native-only (frames pushed straight at the hardware bridge). The variant is
// chosen once by [Selector.Initialize] from the requested mode and a runtime
// capability probe; it is a closed set, never extended at runtime.
//
// Changing the audio topology while frames are in flight is the classic
// source of click and glitch bugs, so [Selector.SetMode] refuses to switch
// while a stream is open. Callers stop, reconfigure, and start again.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wavecore-audio/wavecore/pkg/device"
)

// Mode identifies which output path the engine runs.
type Mode uint8

const (
	// ModeGraphOnly terminates frames in the processing graph. Always
	// available, including on platforms with no audio hardware access.
	ModeGraphOnly Mode = iota

	// ModeHybridNative bridges graph output into a native hardware stream
	// through the lock-free ring.
	ModeHybridNative

	// ModeNativeOnly drives the hardware bridge directly, bypassing the
	// graph.
	ModeNativeOnly
)

// String implements [fmt.Stringer].
func (m Mode) String() string {
	switch m {
	case ModeGraphOnly:
		return "graph-only"
	case ModeHybridNative:
		return "hybrid-native"
	case ModeNativeOnly:
		return "native-only"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode converts a configuration string to a [Mode].
func ParseMode(s string) (Mode, error) {
	switch s {
	case "graph-only", "":
		return ModeGraphOnly, nil
	case "hybrid-native":
		return ModeHybridNative, nil
	case "native-only":
		return ModeNativeOnly, nil
	default:
		return 0, fmt.Errorf("backend: unknown mode %q", s)
	}
}

// State is the selector's lifecycle state. The three running states mirror
// the active [Mode].
type State uint8

const (
	StateUninitialized State = iota
	StateGraphOnly
	StateHybridNative
	StateNativeOnly
	StateFailed
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateGraphOnly:
		return "graph-only"
	case StateHybridNative:
		return "hybrid-native"
	case StateNativeOnly:
		return "native-only"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Sentinel errors for selector state transitions.
var (
	// ErrStreamActive rejects mode switches while a stream is open.
	ErrStreamActive = errors.New("backend: stream active, stop before reconfiguring")

	// ErrNotInitialized is returned by operations before Initialize.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrNativeUnavailable reports a failed native capability probe.
	ErrNativeUnavailable = errors.New("backend: native audio unavailable")
)

// Backend is the output path behind the selector. Push is called from the
// graph or engine thread; the hardware callback, where one exists, runs on
// the device's real-time thread.
type Backend interface {
	// Mode reports which variant this is.
	Mode() Mode

	// Start opens the output path. For native variants this starts the
	// hardware stream.
	Start() error

	// Stop halts the output path. Returns only after any hardware callback
	// has finished. Idempotent.
	Stop() error

	// Streaming reports whether the path is currently running.
	Streaming() bool

	// Push hands one frame of interleaved samples to the output path.
	// Non-blocking; a frame that cannot be accepted this cycle is dropped.
	Push(samples []float32) error

	// Latency estimates the end-to-end output latency.
	Latency() time.Duration

	// Stats returns drop and underrun counters accumulated since creation.
	Stats() Stats

	// Close releases the path's resources. Stops first if needed.
	Close() error
}

// Stats carries a backend's accumulated flow counters. Read via polling,
// never updated from the caller's side.
type Stats struct {
	FramesPushed  uint64
	FramesDropped uint64
	Underruns     uint64
}

// Config carries the stream and ring geometry the native variants need.
type Config struct {
	Stream device.StreamConfig

	// RingFrames is the ring capacity in frame slots.
	RingFrames int

	// FrameSamples is the interleaved sample count per frame slot. Must
	// match Stream.PeriodFrames * Stream.Channels so the hardware callback
	// drains exactly one slot per period.
	FrameSamples int
}

// Selector owns the active backend and enforces the mode state machine.
// Safe for concurrent use.
type Selector struct {
	mgr device.Manager
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	state  State
	cause  error
	active Backend
}

// NewSelector creates an uninitialized selector over mgr.
func NewSelector(mgr device.Manager, cfg Config, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{mgr: mgr, cfg: cfg, log: log}
}

// Initialize probes capability and moves the selector into the running state
// for requested. A failed probe or stream open moves to [StateFailed] with
// the cause recorded; the caller retries with a narrower mode rather than the
// selector picking one on its own. Legal from Uninitialized and Failed.
func (s *Selector) Initialize(requested Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized && s.state != StateFailed {
		return fmt.Errorf("backend: initialize from %s state", s.state)
	}
	return s.activate(requested)
}

// SetMode tears down the active backend and builds the requested one. Fails
// with [ErrStreamActive] while a stream is open: callers follow the
// stop/reconfigure/start sequence instead.
func (s *Selector) SetMode(requested Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateFailed:
		// fall through: retrying a narrower mode from Failed is the
		// documented recovery path
	default:
		if s.active != nil && s.active.Streaming() {
			return ErrStreamActive
		}
	}

	if s.active != nil {
		if err := s.active.Close(); err != nil {
			s.log.Warn("backend: closing previous backend", "error", err)
		}
		s.active = nil
	}
	return s.activate(requested)
}

// activate builds the backend for requested. Caller holds s.mu.
func (s *Selector) activate(requested Mode) error {
	if requested != ModeGraphOnly {
		if err := probeNative(s.mgr); err != nil {
			s.state = StateFailed
			s.cause = err
			return fmt.Errorf("backend: %s probe: %w", requested, err)
		}
	}

	b, err := s.build(requested)
	if err != nil {
		s.state = StateFailed
		s.cause = err
		return err
	}

	s.active = b
	s.cause = nil
	switch requested {
	case ModeHybridNative:
		s.state = StateHybridNative
	case ModeNativeOnly:
		s.state = StateNativeOnly
	default:
		s.state = StateGraphOnly
	}
	s.log.Info("backend: activated", "mode", requested.String())
	return nil
}

func (s *Selector) build(m Mode) (Backend, error) {
	switch m {
	case ModeGraphOnly:
		return newGraphOnly(), nil
	case ModeHybridNative, ModeNativeOnly:
		return newNative(m, s.mgr, s.cfg)
	default:
		return nil, fmt.Errorf("backend: unknown mode %d", uint8(m))
	}
}

// Reconfigure replaces the stream configuration used by future activations.
// Fails with [ErrStreamActive] while a stream is open; the new settings take
// effect on the next SetMode or Initialize.
func (s *Selector) Reconfigure(stream device.StreamConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.Streaming() {
		return ErrStreamActive
	}
	s.cfg.Stream = stream
	s.cfg.FrameSamples = stream.PeriodFrames * stream.Channels
	return nil
}

// State reports the selector's current state and, when Failed, the cause.
func (s *Selector) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.cause
}

// Active returns the running backend, or [ErrNotInitialized] when no backend
// is active.
func (s *Selector) Active() (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, ErrNotInitialized
	}
	return s.active, nil
}

// Fail records an externally observed failure (device disappearance) and
// tears down the active backend. The selector lands in [StateFailed]; the
// caller downgrades via SetMode.
func (s *Selector) Fail(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		if err := s.active.Close(); err != nil {
			s.log.Warn("backend: closing failed backend", "error", err)
		}
		s.active = nil
	}
	s.state = StateFailed
	s.cause = cause
	s.log.Warn("backend: failed", "cause", cause)
}

// Close tears the selector down. Safe to call in any state.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.active != nil {
		err = s.active.Close()
		s.active = nil
	}
	s.state = StateUninitialized
	s.cause = nil
	return err
}
