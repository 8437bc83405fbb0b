// Package graph plumbs audio frames through an ordered chain of processing
// stages and into the active backend.
//
// The full effects library lives above this layer; graph only provides the
// transport: the [Stage] contract, ordered [Chain] execution, the analysis
// [Tap] that offloads FFT work to the worker pool, and the [Destination] that
// hands finished frames to the backend. Stages run on the graph thread, which
// is not real-time but must keep the backend's ring full enough to avoid
// underrun, so no stage may block.
package graph

import (
	"github.com/wavecore-audio/wavecore/pkg/audio"
)

// Stage transforms one frame. Implementations must not block and must not
// retain the frame's sample slice past the call.
type Stage interface {
	Process(f audio.Frame) audio.Frame
}

// StageFunc adapts a function to the [Stage] interface.
type StageFunc func(audio.Frame) audio.Frame

// Process implements [Stage].
func (fn StageFunc) Process(f audio.Frame) audio.Frame { return fn(f) }

// Chain runs stages in order. The zero value is a valid empty chain that
// passes frames through unchanged.
type Chain struct {
	stages []Stage
}

// NewChain builds a chain over the given stages.
func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// Append adds a stage at the end of the chain. Not safe to call while
// Process is running.
func (c *Chain) Append(s Stage) {
	c.stages = append(c.stages, s)
}

// Len returns the number of stages.
func (c *Chain) Len() int { return len(c.stages) }

// Process implements [Stage] by running every stage in order.
func (c *Chain) Process(f audio.Frame) audio.Frame {
	for _, s := range c.stages {
		f = s.Process(f)
	}
	return f
}

// SinkStage passes frames through to an [audio.Sink] unmodified. This is how
// application-level consumers (a WebAudio shim, a recorder) observe the graph
// output without joining the backend path.
type SinkStage struct {
	Sink audio.Sink
}

// Process implements [Stage].
func (s SinkStage) Process(f audio.Frame) audio.Frame {
	if s.Sink != nil {
		s.Sink.Consume(f)
	}
	return f
}

// Gain scales samples in place by a fixed factor. The one effect kept in the
// core, as a worked example of the stage contract.
type Gain struct {
	Factor float32
}

// Process implements [Stage].
func (g Gain) Process(f audio.Frame) audio.Frame {
	for i := range f.Samples {
		f.Samples[i] *= g.Factor
	}
	return f
}
