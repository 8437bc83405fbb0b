//go:build !js

package device

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// Compile-time interface assertions.
var (
	_ Manager = (*Malgo)(nil)
	_ Stream  = (*malgoStream)(nil)
)

// miniaudio converts sample rates and channel layouts internally, so any
// device accepts this full range. The bounds exist so UnsupportedConfig still
// rejects nonsense configs (0 Hz, 32 channels) before touching the hardware.
const (
	minSupportedRate     = 8000
	maxSupportedRate     = 384000
	minSupportedChannels = 1
	maxSupportedChannels = 8
)

// Malgo is the native [Manager] implementation backed by miniaudio. The
// underlying context is shared by enumeration and all streams opened from it.
type Malgo struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	known  map[string]malgo.DeviceID // ID string → native ID, refreshed on Enumerate
	closed bool
}

// NewMalgo initialises the platform audio context. Fails with
// [ErrEnumeration] when no audio backend is usable on this host — the caller
// treats that as "native output unavailable" and falls back to graph-only.
func NewMalgo() (*Malgo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %v", ErrEnumeration, err)
	}
	return &Malgo{
		ctx:   ctx,
		known: make(map[string]malgo.DeviceID),
	}, nil
}

// Enumerate implements [Manager].
func (m *Malgo) Enumerate(dir Direction) ([]Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	kind := malgo.Playback
	if dir == Input {
		kind = malgo.Capture
	}
	infos, err := m.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate %s: %v", ErrEnumeration, dir, err)
	}

	descs := make([]Descriptor, 0, len(infos))
	for _, info := range infos {
		id := hex.EncodeToString(info.ID[:])
		m.known[id] = info.ID
		descs = append(descs, Descriptor{
			ID:            id,
			Name:          info.Name(),
			Direction:     dir,
			MinSampleRate: minSupportedRate,
			MaxSampleRate: maxSupportedRate,
			MinChannels:   minSupportedChannels,
			MaxChannels:   maxSupportedChannels,
			Default:       info.IsDefault != 0,
		})
	}
	return descs, nil
}

// Open implements [Manager]. The returned stream delivers interleaved float32
// output buffers to cb on miniaudio's real-time thread.
func (m *Malgo) Open(cfg StreamConfig, cb DataCallback) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	if cfg.SampleRate < minSupportedRate || cfg.SampleRate > maxSupportedRate ||
		cfg.Channels < minSupportedChannels || cfg.Channels > maxSupportedChannels {
		return nil, fmt.Errorf("%w: %d Hz / %d ch", ErrUnsupportedConfig, cfg.SampleRate, cfg.Channels)
	}

	var devID malgo.DeviceID
	haveID := false
	if cfg.DeviceID != "" {
		id, ok := m.known[cfg.DeviceID]
		if !ok {
			return nil, fmt.Errorf("%w: %q (re-enumerate and retry)", ErrDeviceNotFound, cfg.DeviceID)
		}
		devID = id
		haveID = true
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	devCfg.Playback.Format = malgo.FormatF32
	devCfg.Playback.Channels = uint32(cfg.Channels)
	devCfg.SampleRate = uint32(cfg.SampleRate)
	if cfg.PeriodFrames > 0 {
		devCfg.PeriodSizeInFrames = uint32(cfg.PeriodFrames)
	}
	if haveID {
		devCfg.Playback.DeviceID = devID.Pointer()
	}

	s := &malgoStream{cfg: cfg}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			if len(pOutput) == 0 || !s.running.Load() {
				return
			}
			// Reinterpret the byte buffer as float32 in place; no copy, no
			// allocation on the hardware thread.
			out := unsafe.Slice((*float32)(unsafe.Pointer(&pOutput[0])), len(pOutput)/4)
			cb(out, int(frameCount))
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, devCfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: init device: %v", ErrStreamOpen, err)
	}
	s.dev = dev
	return s, nil
}

// Close implements [Manager].
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if err := m.ctx.Uninit(); err != nil {
		return fmt.Errorf("device: uninit context: %w", err)
	}
	m.ctx.Free()
	return nil
}

// malgoStream wraps a miniaudio device handle.
type malgoStream struct {
	cfg StreamConfig
	dev *malgo.Device

	// running gates the data callback; cleared before the native stop so a
	// callback racing Stop produces no further writes.
	running atomic.Bool

	mu     sync.Mutex
	closed bool
}

// Start implements [Stream].
func (s *malgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.running.Store(true)
	if err := s.dev.Start(); err != nil {
		s.running.Store(false)
		return fmt.Errorf("%w: start: %v", ErrStreamOpen, err)
	}
	return nil
}

// Stop implements [Stream]. miniaudio's device stop joins the audio thread,
// so the callback-not-invoked-again guarantee is a real handshake, not a
// flag check.
func (s *malgoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("device: stop: %w", err)
	}
	return nil
}

// Started implements [Stream].
func (s *malgoStream) Started() bool {
	return s.running.Load()
}

// Latency implements [Stream]. Estimated from the configured quantum; the
// platform may add its own buffering on top.
func (s *malgoStream) Latency() time.Duration {
	if s.cfg.SampleRate <= 0 || s.cfg.PeriodFrames <= 0 {
		return 0
	}
	return time.Duration(s.cfg.PeriodFrames) * time.Second / time.Duration(s.cfg.SampleRate)
}

// Close implements [Stream].
func (s *malgoStream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.dev.Uninit()
	return nil
}
