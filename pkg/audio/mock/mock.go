// Package mock provides an in-memory [audio.Sink] implementation for unit
// tests. The mock records every consumed frame so tests can assert on counts
// and contents. It is safe for concurrent use.
package mock

import (
	"sync"

	"github.com/wavecore-audio/wavecore/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Sink = (*Sink)(nil)

// Sink is a mock [audio.Sink] that records consumed frames.
type Sink struct {
	mu sync.Mutex

	// frames holds deep copies of every consumed frame, in order.
	frames []audio.Frame

	// CallCountConsume records how many times Consume was called.
	CallCountConsume int
}

// Consume implements [audio.Sink]. The frame is cloned before recording so
// the test can inspect it after the producer reuses its buffer.
func (s *Sink) Consume(f audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountConsume++
	s.frames = append(s.frames, f.Clone())
}

// Frames returns a snapshot of all recorded frames.
func (s *Sink) Frames() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Reset clears all recorded frames and counters.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
	s.CallCountConsume = 0
}
