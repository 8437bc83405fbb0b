package backend

import (
	"sync/atomic"
	"time"
)

// graphOnly terminates frames in the processing graph. There is no hardware
// stream and nothing downstream to overflow, so Push always succeeds while
// running. It exists so every mode satisfies the same interface and the
// engine never branches on "do we have hardware".
type graphOnly struct {
	running atomic.Bool
	pushed  atomic.Uint64
	dropped atomic.Uint64
}

func newGraphOnly() *graphOnly { return &graphOnly{} }

func (g *graphOnly) Mode() Mode { return ModeGraphOnly }

func (g *graphOnly) Start() error {
	g.running.Store(true)
	return nil
}

func (g *graphOnly) Stop() error {
	g.running.Store(false)
	return nil
}

func (g *graphOnly) Streaming() bool { return g.running.Load() }

func (g *graphOnly) Push(samples []float32) error {
	if !g.running.Load() {
		g.dropped.Add(1)
		return nil
	}
	g.pushed.Add(1)
	return nil
}

// Latency is zero: frames never leave the graph layer.
func (g *graphOnly) Latency() time.Duration { return 0 }

func (g *graphOnly) Stats() Stats {
	return Stats{
		FramesPushed:  g.pushed.Load(),
		FramesDropped: g.dropped.Load(),
	}
}

func (g *graphOnly) Close() error {
	g.running.Store(false)
	return nil
}
