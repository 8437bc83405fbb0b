// Package worker provides a fixed-size pool for CPU-bound DSP offload (FFT,
// filtering) with a bounded pending queue.
//
// The pool sizes itself from hardware concurrency clamped to configured
// bounds, so a single slow worker cannot starve the pipeline and an
// over-provisioned host cannot oversubscribe it. [Pool.Submit] never blocks:
// when the pending queue is full it fails with [ErrQueueFull] — the bounded
// queue is the guard against unbounded task buildup. Callers suspend only on
// the returned [Future], never on submission.
//
// Tasks are drawn from a single shared queue, so an idle worker always picks
// up the oldest pending task. A panic inside a task resolves that task's
// future with an error and the crashed worker is respawned up to a budget;
// past the budget the pool shrinks its effective concurrency and logs the
// degradation instead of propagating a fatal error.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// Sentinel errors returned by [Pool.Submit].
var (
	// ErrQueueFull signals transient backpressure: the pending queue is at
	// capacity. Recover locally by skipping this cycle, not by waiting.
	ErrQueueFull = errors.New("worker: pending queue full")

	// ErrClosed is returned after [Pool.Close].
	ErrClosed = errors.New("worker: pool closed")
)

// Task is a unit of work executed on a pool worker. Run receives a context
// that is cancelled when the future is cancelled or the pool shuts down.
type Task interface {
	Run(ctx context.Context) (any, error)
}

// TaskFunc adapts a plain function to the [Task] interface.
type TaskFunc func(ctx context.Context) (any, error)

// Run implements [Task].
func (fn TaskFunc) Run(ctx context.Context) (any, error) { return fn(ctx) }

// Result carries a completed task's value or error.
type Result struct {
	Value any
	Err   error
}

// Future is the handle to a submitted task. The result is delivered exactly
// once on the channel returned by [Future.Result].
type Future struct {
	res       chan Result
	ctx       context.Context
	cancel    context.CancelFunc
	delivered atomic.Bool
}

// Result returns the channel on which the task's single [Result] arrives.
// The channel is buffered; the worker never blocks delivering to it.
func (f *Future) Result() <-chan Result {
	return f.res
}

// Cancel requests best-effort cancellation: the task's context is cancelled,
// and a result arriving after Cancel is discarded rather than delivered.
func (f *Future) Cancel() {
	f.cancel()
}

// deliver hands the result to the waiter unless the future was cancelled or
// already resolved.
func (f *Future) deliver(r Result) {
	if f.ctx.Err() != nil {
		return // cancelled: discard, don't deliver
	}
	if !f.delivered.CompareAndSwap(false, true) {
		return
	}
	f.res <- r
}

// Config holds pool sizing knobs.
type Config struct {
	// Min is the lower bound on worker count. Default: 1.
	Min int

	// Max is the upper bound on worker count. Default: hardware concurrency.
	Max int

	// QueueSize bounds the pending-task queue. Default: 64.
	QueueSize int

	// RespawnBudget is how many crashed workers are replaced before the pool
	// starts shrinking instead. Default: 8.
	RespawnBudget int
}

// Option configures a [Pool] during construction.
type Option func(*Pool)

// WithHardwareConcurrency overrides the detected CPU count used for sizing.
// Intended for tests that need deterministic pool sizes.
func WithHardwareConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.hwConcurrency = n
		}
	}
}

// job pairs a task with its future on the queue.
type job struct {
	task Task
	fut  *Future
}

// Pool is a fixed set of worker goroutines fed from one bounded queue.
// Safe for concurrent use.
type Pool struct {
	queue         chan job
	hwConcurrency int

	mu           sync.Mutex
	size         int // configured worker count
	effective    int // workers currently alive
	respawnsLeft int
	closed       bool

	wg sync.WaitGroup
}

// New creates and starts a pool of min(hardwareConcurrency, cfg.Max) workers,
// never fewer than cfg.Min.
func New(cfg Config, opts ...Option) *Pool {
	if cfg.Min <= 0 {
		cfg.Min = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RespawnBudget <= 0 {
		cfg.RespawnBudget = 8
	}

	p := &Pool{
		queue:         make(chan job, cfg.QueueSize),
		hwConcurrency: runtime.NumCPU(),
		respawnsLeft:  cfg.RespawnBudget,
	}
	for _, o := range opts {
		o(p)
	}

	if cfg.Max <= 0 {
		cfg.Max = p.hwConcurrency
	}
	n := p.hwConcurrency
	if n > cfg.Max {
		n = cfg.Max
	}
	if n < cfg.Min {
		n = cfg.Min
	}
	p.size = n
	p.effective = n

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Size returns the number of workers the pool currently operates. It drops
// below the configured size only after repeated worker crashes exhaust the
// respawn budget.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effective
}

// Pending returns the number of tasks waiting in the queue.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Submit enqueues task and returns immediately with its [Future]. Fails with
// [ErrQueueFull] when the pending queue is at capacity and [ErrClosed] after
// shutdown. ctx bounds the task's execution, not the submission.
func (p *Pool) Submit(ctx context.Context, task Task) (*Future, error) {
	fctx, cancel := context.WithCancel(ctx)
	fut := &Future{res: make(chan Result, 1), ctx: fctx, cancel: cancel}

	// The closed check and the enqueue share one critical section: Close
	// closes the queue only after marking the pool closed under the same
	// mutex, so the send can never hit a closed channel. The send itself is
	// non-blocking, so holding the mutex here is cheap.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		cancel()
		return nil, ErrClosed
	}
	select {
	case p.queue <- job{task: task, fut: fut}:
		return fut, nil
	default:
		cancel()
		return nil, ErrQueueFull
	}
}

// Close stops accepting work, lets queued tasks finish, and waits for all
// workers to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// run is one worker's loop. A panic in a task resolves the task's future with
// an error, ends this worker, and triggers a respawn (budget permitting) so
// one poisoned payload cannot corrupt pool state or other in-flight tasks.
func (p *Pool) run() {
	defer p.wg.Done()

	var current *Future
	defer func() {
		if r := recover(); r != nil {
			if current != nil {
				current.deliver(Result{Err: fmt.Errorf("worker: task panicked: %v", r)})
			}
			p.workerCrashed()
		}
	}()

	for j := range p.queue {
		if j.fut.ctx.Err() != nil {
			continue // cancelled before a worker picked it up
		}
		current = j.fut
		v, err := j.task.Run(j.fut.ctx)
		j.fut.deliver(Result{Value: v, Err: err})
		current = nil
	}
}

// workerCrashed replaces the dead worker while budget remains, otherwise
// shrinks the pool's effective concurrency.
func (p *Pool) workerCrashed() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.effective--
		return
	}
	if p.respawnsLeft > 0 {
		p.respawnsLeft--
		p.wg.Add(1)
		go p.run()
		slog.Warn("worker pool: respawned crashed worker",
			"respawns_left", p.respawnsLeft)
		return
	}
	p.effective--
	slog.Warn("worker pool: respawn budget exhausted, shrinking",
		"effective_workers", p.effective, "configured", p.size)
}
