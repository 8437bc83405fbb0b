// Package ring implements the lock-free single-producer/single-consumer frame
// ring buffer that bridges the graph-processing thread and the hardware
// callback thread.
//
// The buffer uses two monotonically increasing atomic cursors and a
// power-of-two slot count with bitwise masking. This is the one place in
// wavecore where ownership discipline alone is not enough and explicit
// atomic-ordering reasoning is required: the producer publishes a slot by
// storing its own cursor after the copy completes, and the consumer observes
// the opposing cursor before touching slot data. Go's sync/atomic guarantees
// sequential consistency, so the consumer never reads a slot the producer has
// not finished writing.
//
// Thread assignment is enforced by construction: [Buffer.Handles] hands out
// exactly one [Producer] and one [Consumer]; a second call fails. Concurrent
// use of a single handle from multiple goroutines is undefined.
package ring

import (
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"
	"time"
)

// ErrHandlesTaken is returned by [Buffer.Handles] after the producer and
// consumer handles have already been issued.
var ErrHandlesTaken = errors.New("ring: producer/consumer handles already issued")

// WriteStatus is the outcome of a [Producer.Write] call.
type WriteStatus int

const (
	// Written means the frame was copied into the buffer in full.
	Written WriteStatus = iota

	// WouldOverflow means the buffer had no free slot (or the frame exceeded
	// the slot size) and the write was rejected. Existing buffered frames are
	// untouched; the producer decides whether to drop or retry later.
	WouldOverflow
)

// String returns the human-readable name of the status.
func (s WriteStatus) String() string {
	switch s {
	case Written:
		return "written"
	case WouldOverflow:
		return "would-overflow"
	default:
		return "unknown"
	}
}

// ReadStatus is the outcome of a [Consumer.Read] or [Consumer.ReadWait] call.
type ReadStatus int

const (
	// Ready means a frame was copied into the destination slice.
	Ready ReadStatus = iota

	// NotReady means the buffer was empty at the time of the call.
	NotReady

	// Timeout means [Consumer.ReadWait] waited its full timeout without a
	// frame arriving. Treated as "no data yet", not an error.
	Timeout
)

// String returns the human-readable name of the status.
func (s ReadStatus) String() string {
	switch s {
	case Ready:
		return "ready"
	case NotReady:
		return "not-ready"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Buffer is a fixed-capacity SPSC ring of audio frames. Create one with [New]
// and obtain the two endpoint handles with [Buffer.Handles].
type Buffer struct {
	// Cursors are monotonic frame counts, masked on slot access. They sit on
	// separate cache lines so producer and consumer do not false-share.
	writePos atomic.Uint64
	_        [56]byte
	readPos  atomic.Uint64
	_        [56]byte

	// slots is a single contiguous allocation of capacity × slotLen samples.
	slots   []float32
	lens    []uint32 // per-slot sample count of the stored frame
	slotLen int
	mask    uint64
	cap     uint64

	// notify wakes a blocked ReadWait. Capacity 1; sends never block.
	notify chan struct{}

	handles atomic.Bool
}

// New creates a ring buffer holding up to capacityFrames-1 frames of at most
// slotSamples samples each (one slot is reserved to disambiguate full from
// empty). capacityFrames is rounded up to the next power of two.
func New(capacityFrames, slotSamples int) (*Buffer, error) {
	if capacityFrames < 2 {
		return nil, fmt.Errorf("ring: capacity %d too small (need >= 2 frames)", capacityFrames)
	}
	if slotSamples <= 0 {
		return nil, fmt.Errorf("ring: slot size %d must be positive", slotSamples)
	}
	n := uint64(1) << bits.Len64(uint64(capacityFrames-1))
	return &Buffer{
		slots:   make([]float32, int(n)*slotSamples),
		lens:    make([]uint32, n),
		slotLen: slotSamples,
		mask:    n - 1,
		cap:     n,
		notify:  make(chan struct{}, 1),
	}, nil
}

// Handles issues the single producer and consumer endpoint pair. A second
// call returns [ErrHandlesTaken]; the SPSC invariant is enforced here rather
// than by documentation.
func (b *Buffer) Handles() (*Producer, *Consumer, error) {
	if !b.handles.CompareAndSwap(false, true) {
		return nil, nil, ErrHandlesTaken
	}
	return &Producer{b: b}, &Consumer{b: b}, nil
}

// Capacity returns the number of frames the buffer can hold at once
// (slot count minus the reserved slot).
func (b *Buffer) Capacity() int {
	return int(b.cap - 1)
}

// SlotSamples returns the maximum sample count per frame.
func (b *Buffer) SlotSamples() int {
	return b.slotLen
}

// Buffered returns the number of frames currently available to read.
// Safe to call from any goroutine; the value is immediately stale.
func (b *Buffer) Buffered() int {
	return int(b.writePos.Load() - b.readPos.Load())
}

// Producer is the write endpoint. Only one goroutine may use it at a time.
type Producer struct {
	b *Buffer
}

// Write copies samples into the next free slot. It never blocks and never
// allocates. The write is all-or-nothing: if no slot is free, or the frame
// exceeds the slot size, nothing is copied and [WouldOverflow] is returned.
// Buffered frames are never evicted — the newest write is rejected instead.
func (p *Producer) Write(samples []float32) WriteStatus {
	b := p.b
	if len(samples) > b.slotLen {
		return WouldOverflow
	}
	w := b.writePos.Load()
	r := b.readPos.Load()
	if w-r >= b.cap-1 {
		return WouldOverflow
	}

	slot := (w & b.mask) * uint64(b.slotLen)
	copy(b.slots[slot:slot+uint64(len(samples))], samples)
	b.lens[w&b.mask] = uint32(len(samples))

	// Publish: the cursor store makes the slot contents visible to the
	// consumer. Nothing may be written to the slot after this point.
	b.writePos.Store(w + 1)

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return Written
}

// Free returns the number of frames that can be written before the buffer
// reports [WouldOverflow].
func (p *Producer) Free() int {
	b := p.b
	return int(b.cap - 1 - (b.writePos.Load() - b.readPos.Load()))
}

// Consumer is the read endpoint. Only one goroutine may use it at a time —
// typically the hardware callback thread.
type Consumer struct {
	b *Buffer
}

// Read copies the oldest buffered frame into dst and returns the sample count
// and [Ready]. When the buffer is empty it returns (0, [NotReady]) without
// waiting. If dst is shorter than the stored frame, the frame is truncated to
// len(dst); the remainder of the frame is discarded.
func (c *Consumer) Read(dst []float32) (int, ReadStatus) {
	b := c.b
	r := b.readPos.Load()
	w := b.writePos.Load()
	if w == r {
		return 0, NotReady
	}

	n := int(b.lens[r&b.mask])
	if n > len(dst) {
		n = len(dst)
	}
	slot := (r & b.mask) * uint64(b.slotLen)
	copy(dst[:n], b.slots[slot:slot+uint64(n)])

	// Release: the cursor store hands the slot back to the producer. Slot
	// data must not be touched after this point.
	b.readPos.Store(r + 1)
	return n, Ready
}

// ReadWait behaves like [Read] but, when the buffer is empty, waits up to
// timeout for a frame to arrive. It returns [Timeout] — never hangs — so a
// hardware thread using the blocking variant cannot be stalled indefinitely.
func (c *Consumer) ReadWait(dst []float32, timeout time.Duration) (int, ReadStatus) {
	if n, st := c.Read(dst); st == Ready {
		return n, st
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-c.b.notify:
			if n, st := c.Read(dst); st == Ready {
				return n, st
			}
			// Stale wakeup (notification raced an earlier Read); keep waiting.
		case <-timer.C:
			return 0, Timeout
		}
	}
}

// ReadSilence fills out with zeros. Used by consumers that must hand the
// hardware a full quantum even on underrun.
func ReadSilence(out []float32) {
	for i := range out {
		out[i] = 0
	}
}
