// Package mock provides in-memory implementations of [device.Manager] and
// [device.Stream] for unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// tests can assert on call counts, and they expose exported fields the test
// sets to control return values. The mock stream never spawns a hardware
// thread; tests drive the data callback explicitly with [Stream.Tick].
//
// Typical usage:
//
//	mgr := &mock.Manager{
//	    Devices: []device.Descriptor{{ID: "dev-1", Name: "Mock Out", Direction: device.Output}},
//	}
//	st, err := mgr.Open(device.StreamConfig{SampleRate: 48000, Channels: 2}, cb)
//	st.Start()
//	st.(*mock.Stream).Tick(128) // invoke cb for one 128-frame quantum
package mock

import (
	"sync"
	"time"

	"github.com/wavecore-audio/wavecore/pkg/device"
)

// Compile-time interface assertions.
var (
	_ device.Manager = (*Manager)(nil)
	_ device.Stream  = (*Stream)(nil)
)

// Manager is a mock [device.Manager] backed by a scripted device list.
type Manager struct {
	mu sync.Mutex

	// Devices is the list returned by Enumerate (filtered by direction).
	Devices []device.Descriptor

	// EnumerateError, when non-nil, is returned by every Enumerate call.
	EnumerateError error

	// OpenError, when non-nil, is returned by every Open call.
	OpenError error

	// Streams holds every stream handed out by Open, in order.
	Streams []*Stream

	// CallCountEnumerate records how many times Enumerate was called.
	CallCountEnumerate int

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Enumerate implements [device.Manager].
func (m *Manager) Enumerate(dir device.Direction) ([]device.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountEnumerate++
	if m.EnumerateError != nil {
		return nil, m.EnumerateError
	}
	var out []device.Descriptor
	for _, d := range m.Devices {
		if d.Direction == dir {
			out = append(out, d)
		}
	}
	return out, nil
}

// SetDevices replaces the scripted device list. Use together with a
// [device.Watcher] to simulate hot-plug.
func (m *Manager) SetDevices(devs []device.Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Devices = devs
}

// Open implements [device.Manager]. It validates cfg against the scripted
// descriptors the same way the malgo implementation does.
func (m *Manager) Open(cfg device.StreamConfig, cb device.DataCallback) (device.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountOpen++
	if m.OpenError != nil {
		return nil, m.OpenError
	}

	if cfg.DeviceID != "" {
		var found *device.Descriptor
		for i := range m.Devices {
			if m.Devices[i].ID == cfg.DeviceID {
				found = &m.Devices[i]
				break
			}
		}
		if found == nil {
			return nil, device.ErrDeviceNotFound
		}
		if !found.Supports(cfg) {
			return nil, device.ErrUnsupportedConfig
		}
	}

	s := &Stream{cfg: cfg, cb: cb}
	m.Streams = append(m.Streams, s)
	return s, nil
}

// Close implements [device.Manager].
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountClose++
	return nil
}

// LastStream returns the most recently opened stream, or nil.
func (m *Manager) LastStream() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Streams) == 0 {
		return nil
	}
	return m.Streams[len(m.Streams)-1]
}

// Stream is a mock [device.Stream] driven manually via [Stream.Tick].
type Stream struct {
	mu      sync.Mutex
	cfg     device.StreamConfig
	cb      device.DataCallback
	started bool
	closed  bool

	// StartError, when non-nil, is returned by Start.
	StartError error

	// CallCountStart and CallCountStop record lifecycle calls.
	CallCountStart int
	CallCountStop  int

	// Output accumulates every sample the callback produced across Ticks.
	Output []float32
}

// Start implements [device.Stream].
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return s.StartError
	}
	s.started = true
	return nil
}

// Stop implements [device.Stream]. Holding the mutex for the duration gives
// the same callback-not-running-after-return guarantee as the native stream.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.started = false
	return nil
}

// Latency implements [device.Stream].
func (s *Stream) Latency() time.Duration {
	if s.cfg.SampleRate <= 0 || s.cfg.PeriodFrames <= 0 {
		return 0
	}
	return time.Duration(s.cfg.PeriodFrames) * time.Second / time.Duration(s.cfg.SampleRate)
}

// Close implements [device.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.closed = true
	return nil
}

// Started reports whether the stream is currently running.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Tick invokes the data callback for one quantum of the given frame count,
// as the hardware thread would, and appends the produced samples to Output.
// It is a no-op when the stream is stopped.
func (s *Stream) Tick(frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.closed {
		return
	}
	ch := s.cfg.Channels
	if ch <= 0 {
		ch = 1
	}
	out := make([]float32, frames*ch)
	s.cb(out, frames)
	s.Output = append(s.Output, out...)
}
