// Package bufpool provides a bounded pool of pre-allocated sample buffers.
//
// The pool allocates its full capacity at construction; [Pool.Acquire] never
// allocates and never blocks. When every buffer is checked out, Acquire fails
// fast with [ErrExhausted] — callers on the real-time path treat that as
// "skip this cycle", not "wait". Total buffers in existence never exceed the
// configured cap, which is the guard against unbounded growth.
//
// The free list is a buffered channel, so acquire and release are a single
// uncontended channel operation in the common case.
package bufpool

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrExhausted is returned by [Pool.Acquire] when every buffer is checked out.
var ErrExhausted = errors.New("bufpool: all buffers checked out")

// Pool owns a fixed set of reusable sample buffers. Safe for concurrent use.
type Pool struct {
	free chan *Buffer
	size int
}

// Buffer is a borrowed sample buffer. Call [Buffer.Release] exactly once when
// done; releasing is safe on every exit path and a duplicate Release is a
// no-op rather than a corruption.
type Buffer struct {
	// Samples is the full-capacity backing slice. Borrowers may reslice it
	// but must not grow it past its capacity.
	Samples []float32

	pool     *Pool
	checkout atomic.Bool
}

// New creates a pool of count buffers of samplesEach float32 samples,
// allocated eagerly so the hot path never touches the allocator.
func New(count, samplesEach int) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("bufpool: count %d must be positive", count)
	}
	if samplesEach <= 0 {
		return nil, fmt.Errorf("bufpool: buffer size %d must be positive", samplesEach)
	}
	p := &Pool{
		free: make(chan *Buffer, count),
		size: count,
	}
	for i := 0; i < count; i++ {
		p.free <- &Buffer{Samples: make([]float32, samplesEach), pool: p}
	}
	return p, nil
}

// Acquire borrows a buffer from the pool. Returns [ErrExhausted] synchronously
// when none are available.
func (p *Pool) Acquire() (*Buffer, error) {
	select {
	case b := <-p.free:
		b.checkout.Store(true)
		b.Samples = b.Samples[:cap(b.Samples)]
		return b, nil
	default:
		return nil, ErrExhausted
	}
}

// Available returns the number of buffers currently in the free list.
func (p *Pool) Available() int {
	return len(p.free)
}

// Size returns the configured buffer count.
func (p *Pool) Size() int {
	return p.size
}

// Release returns the buffer to its pool. The checkout flag guarantees the
// buffer re-enters the free list exactly once even if Release is called from
// multiple exit paths.
func (b *Buffer) Release() {
	if !b.checkout.CompareAndSwap(true, false) {
		return
	}
	b.pool.free <- b
}
