// Package audio defines the shared audio types that flow through the wavecore
// engine: sample formats, frames, and the [Sink] consumer interface.
//
// Frames are the atomic unit of transport. The (external) graph/effects layer
// produces them on its own processing clock; the engine routes them through
// the active backend to hardware output, a registered [Sink], or both.
//
// This package lives under pkg/ because external code (the graph layer, UI
// shims, platform sinks) is expected to construct frames and implement [Sink].
package audio

import "time"

// Format describes the sample layout of a frame: rate in Hz and interleaved
// channel count. Samples are always 32-bit floats in [-1, 1].
type Format struct {
	// SampleRate in Hz (e.g., 48000).
	SampleRate int

	// Channels is the interleaved channel count: 1 for mono, 2 for stereo.
	Channels int
}

// Valid reports whether the format carries a usable rate and channel count.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// FrameDuration returns the wall-clock duration of n interleaved samples in
// this format. Returns zero for an invalid format.
func (f Format) FrameDuration(n int) time.Duration {
	if !f.Valid() {
		return 0
	}
	frames := n / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Frame is a fixed-size group of interleaved float32 samples tagged with its
// format. A frame is immutable once handed to the engine: producers must not
// reuse the Samples slice after pushing the frame.
type Frame struct {
	// Samples holds interleaved PCM data.
	Samples []float32

	// Format describes rate and channel count of Samples.
	Format Format

	// Timestamp marks when this frame was produced, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the wall-clock length of the frame.
func (f Frame) Duration() time.Duration {
	return f.Format.FrameDuration(len(f.Samples))
}

// Clone returns a deep copy of the frame with its own sample storage.
// Use this when a consumer needs to retain the data past the current call.
func (f Frame) Clone() Frame {
	cp := make([]float32, len(f.Samples))
	copy(cp, f.Samples)
	return Frame{Samples: cp, Format: f.Format, Timestamp: f.Timestamp}
}

// Sink consumes frames on the producer's clock. In graph-only mode the sink
// is the terminal output (e.g., a WebAudio shim on the browser target); in
// hybrid mode it runs alongside the native hardware bridge.
//
// Consume is called synchronously from the engine's push path and must not
// block: a sink that needs to do slow work should hand the frame off to its
// own goroutine. The frame is only valid for the duration of the call —
// retain via [Frame.Clone].
type Sink interface {
	Consume(Frame)
}

// SinkFunc adapts a plain function to the [Sink] interface.
type SinkFunc func(Frame)

// Consume implements [Sink].
func (fn SinkFunc) Consume(f Frame) { fn(f) }
