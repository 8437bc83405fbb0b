package graph

import (
	"context"
	"sync/atomic"

	"github.com/wavecore-audio/wavecore/internal/analysis"
	"github.com/wavecore-audio/wavecore/internal/bufpool"
	"github.com/wavecore-audio/wavecore/pkg/audio"
	"github.com/wavecore-audio/wavecore/pkg/worker"
)

// Tap copies passing frames into pooled buffers and submits spectrum tasks
// to the worker pool, leaving the frame itself untouched.
//
// The tap degrades instead of stalling: when the buffer pool is exhausted or
// the worker queue is full, the analysis cycle is skipped and counted. Audio
// flow is never gated on diagnostics.
type Tap struct {
	pool    *bufpool.Pool
	workers *worker.Pool
	spec    *analysis.Spectrum
	emit    func(mags []float64)

	skippedPool  atomic.Uint64
	skippedQueue atomic.Uint64
}

// NewTap builds a tap that delivers each computed magnitude spectrum to emit.
// emit runs on a pool-owned goroutine and must not block for long.
func NewTap(pool *bufpool.Pool, workers *worker.Pool, spec *analysis.Spectrum, emit func([]float64)) *Tap {
	return &Tap{pool: pool, workers: workers, spec: spec, emit: emit}
}

// Process implements [Stage].
func (t *Tap) Process(f audio.Frame) audio.Frame {
	buf, err := t.pool.Acquire()
	if err != nil {
		t.skippedPool.Add(1)
		return f
	}

	n := copy(buf.Samples, f.Samples)
	task := &analysis.SpectrumTask{Spectrum: t.spec, Buffer: buf, Samples: n}
	fut, err := t.workers.Submit(context.Background(), task)
	if err != nil {
		// Task never reached a worker, so the buffer is still ours to
		// return.
		buf.Release()
		t.skippedQueue.Add(1)
		return f
	}

	go t.collect(fut)
	return f
}

func (t *Tap) collect(fut *worker.Future) {
	r := <-fut.Result()
	if r.Err != nil {
		return
	}
	if mags, ok := r.Value.([]float64); ok && t.emit != nil {
		t.emit(mags)
	}
}

// Skipped reports how many analysis cycles were dropped, split by cause.
func (t *Tap) Skipped() (poolExhausted, queueFull uint64) {
	return t.skippedPool.Load(), t.skippedQueue.Load()
}
