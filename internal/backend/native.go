package backend

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wavecore-audio/wavecore/internal/ring"
	"github.com/wavecore-audio/wavecore/pkg/device"
)

// native bridges frames into a hardware stream through the lock-free ring.
// It backs both the hybrid and native-only modes; the two differ only in who
// calls Push (the graph's destination stage versus the engine directly).
//
// The bridge owns exactly one producer and one consumer handle to its ring.
// That single-producer/single-consumer discipline is what lets the ring go
// lockless: Push runs on the graph/engine thread, the hardware callback
// drains on the device's real-time thread, and neither ever takes a lock.
type native struct {
	mode   Mode
	ring   *ring.Buffer
	prod   *ring.Producer
	cons   *ring.Consumer
	stream device.Stream

	pushed    atomic.Uint64
	dropped   atomic.Uint64
	underruns atomic.Uint64
}

// newNative opens the hardware stream and wires its callback to the ring's
// consumer side.
func newNative(m Mode, mgr device.Manager, cfg Config) (*native, error) {
	if cfg.FrameSamples != cfg.Stream.PeriodFrames*cfg.Stream.Channels {
		return nil, fmt.Errorf("backend: frame samples %d does not match period %d x %d channels",
			cfg.FrameSamples, cfg.Stream.PeriodFrames, cfg.Stream.Channels)
	}

	rb, err := ring.New(cfg.RingFrames, cfg.FrameSamples)
	if err != nil {
		return nil, fmt.Errorf("backend: ring: %w", err)
	}
	prod, cons, err := rb.Handles()
	if err != nil {
		return nil, fmt.Errorf("backend: ring handles: %w", err)
	}

	n := &native{mode: m, ring: rb, prod: prod, cons: cons}
	stream, err := mgr.Open(cfg.Stream, n.render)
	if err != nil {
		return nil, fmt.Errorf("backend: open stream: %w", err)
	}
	n.stream = stream
	return n, nil
}

// render runs on the hardware's real-time thread. It must not block, lock,
// or allocate: one non-blocking ring read per period, zero-fill on miss.
// Silence over a stalled hardware thread, always.
func (n *native) render(out []float32, frames int) {
	if _, st := n.cons.Read(out); st != ring.Ready {
		ring.ReadSilence(out)
		n.underruns.Add(1)
	}
}

func (n *native) Mode() Mode { return n.mode }

func (n *native) Start() error { return n.stream.Start() }

func (n *native) Stop() error { return n.stream.Stop() }

func (n *native) Streaming() bool {
	return n.stream.Started()
}

// Push writes one frame at the producer side. When the graph outpaces the
// hardware clock the ring fills and the newest frame is dropped here; the
// consumer side never stalls.
func (n *native) Push(samples []float32) error {
	switch n.prod.Write(samples) {
	case ring.Written:
		n.pushed.Add(1)
	case ring.WouldOverflow:
		n.dropped.Add(1)
	}
	return nil
}

// Latency combines the hardware period with the frames currently buffered in
// the ring: each buffered slot is one more period ahead of the hardware.
func (n *native) Latency() time.Duration {
	period := n.stream.Latency()
	return period + time.Duration(n.ring.Buffered())*period
}

func (n *native) Stats() Stats {
	return Stats{
		FramesPushed:  n.pushed.Load(),
		FramesDropped: n.dropped.Load(),
		Underruns:     n.underruns.Load(),
	}
}

func (n *native) Close() error {
	if err := n.stream.Stop(); err != nil {
		return err
	}
	return n.stream.Close()
}
