// Package engine is the public facade over the wavecore audio core: device
// management, backend selection, the graph-to-hardware bridge, and the DSP
// worker pool behind one handle.
//
// The engine is process-wide in spirit but never ambient in practice: all
// state hangs off the [Handle] returned by [Initialize], and a second
// concurrent Initialize fails with [ErrAlreadyInitialized] until the first
// handle is closed. Every operation takes the handle; nothing reads globals.
//
// Mode changes follow the stop/reconfigure/start contract: [Handle.SetMode]
// and [Handle.SelectDevice] fail with [ErrStreamActive] while a stream is
// open. The one exception is the automatic downgrade to graph-only when the
// active output device disappears mid-stream, which the engine performs
// itself and reports through [Handle.Events].
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/wavecore-audio/wavecore/internal/analysis"
	"github.com/wavecore-audio/wavecore/internal/backend"
	"github.com/wavecore-audio/wavecore/internal/bufpool"
	"github.com/wavecore-audio/wavecore/internal/graph"
	"github.com/wavecore-audio/wavecore/internal/observe"
	"github.com/wavecore-audio/wavecore/internal/resilience"
	"github.com/wavecore-audio/wavecore/pkg/audio"
	"github.com/wavecore-audio/wavecore/pkg/device"
	"github.com/wavecore-audio/wavecore/pkg/worker"
)

// BackendMode selects the output path. See the backend package for the
// semantics of each mode.
type BackendMode = backend.Mode

// Re-exported mode values.
const (
	GraphOnly    BackendMode = backend.ModeGraphOnly
	HybridNative BackendMode = backend.ModeHybridNative
	NativeOnly   BackendMode = backend.ModeNativeOnly
)

// Sentinel errors for handle lifecycle operations.
var (
	// ErrAlreadyInitialized is returned when a live handle already exists.
	ErrAlreadyInitialized = errors.New("engine: already initialized")

	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("engine: handle closed")

	// ErrStreamActive rejects reconfiguration while a stream is open.
	ErrStreamActive = backend.ErrStreamActive
)

// DeviceSelectionConfig is the durable device preference handed in by the
// configuration layer.
type DeviceSelectionConfig struct {
	// PreferredDeviceID selects a specific output device. Empty means the
	// platform default.
	PreferredDeviceID string

	// PreferredMode is the widest mode to attempt. The engine falls back to
	// narrower modes down the resilience ladder when it cannot be
	// established.
	PreferredMode BackendMode
}

// Config carries everything [Initialize] needs.
type Config struct {
	Device DeviceSelectionConfig

	// SampleRate, Channels, and PeriodFrames define the stream geometry.
	// Defaults: 48000, 2, 128.
	SampleRate   int
	Channels     int
	PeriodFrames int

	// RingFrames is the bridge ring capacity in frame slots. Default: 64.
	RingFrames int

	// PoolBuffers is the analysis buffer pool size. Default: 16.
	PoolBuffers int

	// FFTSize is the spectrum transform length. Default: 1024.
	FFTSize int

	// Workers bounds the DSP offload pool.
	Workers worker.Config

	// WatchInterval is the hot-plug polling interval. Zero disables the
	// watcher.
	WatchInterval time.Duration

	// Manager overrides the platform device manager. Nil means miniaudio.
	// Tests inject a mock here.
	Manager device.Manager

	// Logger defaults to [slog.Default].
	Logger *slog.Logger

	// Metrics overrides the process-wide metrics instance. Nil means
	// [observe.DefaultMetrics]. Tests inject an instance backed by a manual
	// reader here.
	Metrics *observe.Metrics

	// OnSpectrum, when set, receives each computed magnitude spectrum on a
	// worker-owned goroutine.
	OnSpectrum func(mags []float64)

	// Sink, when set, receives every frame pushed through the graph, after
	// the analysis tap and before the backend. Consume must not block.
	Sink audio.Sink
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.Channels <= 0 {
		c.Channels = 2
	}
	if c.PeriodFrames <= 0 {
		c.PeriodFrames = 128
	}
	if c.RingFrames <= 0 {
		c.RingFrames = 64
	}
	if c.PoolBuffers <= 0 {
		c.PoolBuffers = 16
	}
	if c.FFTSize <= 0 {
		c.FFTSize = 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// EventType classifies engine events.
type EventType int

const (
	// EventDowngrade reports an automatic backend mode downgrade.
	EventDowngrade EventType = iota

	// EventDeviceAdded reports a hot-plugged output device.
	EventDeviceAdded

	// EventDeviceRemoved reports an unplugged output device.
	EventDeviceRemoved
)

// Event is delivered on [Handle.Events]. The channel is buffered; events are
// dropped, never blocked on, when the consumer falls behind.
type Event struct {
	Type   EventType
	From   BackendMode
	To     BackendMode
	Cause  string
	Device device.Descriptor
}

// live guards against a second concurrent handle. Cleared by [Handle.Close].
var live atomic.Bool

// Handle is the single owned entry point to a running engine. All methods
// are safe for concurrent use.
type Handle struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics

	mgr      device.Manager
	ownedMgr bool
	sel      *backend.Selector
	ladder   *resilience.Ladder
	workers  *worker.Pool
	pool     *bufpool.Pool
	spec     *analysis.Spectrum
	tap      *graph.Tap
	chain    *graph.Chain
	watcher  *device.Watcher
	flowReg  metric.Registration

	events chan Event
	epoch  time.Time

	mu             sync.Mutex
	closed         bool
	mode           BackendMode
	activeDeviceID string
	format         audio.Format
}

// Initialize builds and starts an engine for cfg. It probes capability for
// the preferred mode and walks the downgrade ladder when the probe or stream
// open fails; the achieved mode is available via [Handle.Mode]. A second call
// before [Handle.Close] fails with [ErrAlreadyInitialized].
func Initialize(cfg Config) (*Handle, error) {
	if !live.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}

	h, err := build(cfg)
	if err != nil {
		live.Store(false)
		return nil, err
	}
	return h, nil
}

func build(cfg Config) (*Handle, error) {
	cfg.applyDefaults()

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	h := &Handle{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: metrics,
		events:  make(chan Event, 16),
		epoch:   time.Now(),
		format:  audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
	}

	if cfg.Manager != nil {
		h.mgr = cfg.Manager
	} else {
		mgr, err := device.NewMalgo()
		if err != nil {
			return nil, fmt.Errorf("engine: device manager: %w", err)
		}
		h.mgr = mgr
		h.ownedMgr = true
	}

	var err error
	if h.pool, err = bufpool.New(cfg.PoolBuffers, cfg.FFTSize); err != nil {
		h.teardown()
		return nil, fmt.Errorf("engine: buffer pool: %w", err)
	}
	if h.spec, err = analysis.NewSpectrum(cfg.FFTSize); err != nil {
		h.teardown()
		return nil, fmt.Errorf("engine: spectrum: %w", err)
	}
	h.workers = worker.New(cfg.Workers)

	streamCfg := device.StreamConfig{
		DeviceID:     cfg.Device.PreferredDeviceID,
		SampleRate:   cfg.SampleRate,
		Channels:     cfg.Channels,
		PeriodFrames: cfg.PeriodFrames,
	}
	h.sel = backend.NewSelector(h.mgr, backend.Config{
		Stream:       streamCfg,
		RingFrames:   cfg.RingFrames,
		FrameSamples: cfg.PeriodFrames * cfg.Channels,
	}, h.log)
	h.ladder = resilience.NewLadder(h.log)

	requested := cfg.Device.PreferredMode
	achieved, err := h.ladder.Descend(requested, func(m backend.Mode) error {
		return h.sel.Initialize(m)
	})
	if err != nil {
		h.teardown()
		return nil, fmt.Errorf("engine: initialize backend: %w", err)
	}
	h.mode = achieved
	if achieved != requested {
		h.emitDowngrade(requested, achieved, "initialization failed")
	}

	h.tap = graph.NewTap(h.pool, h.workers, h.spec, cfg.OnSpectrum)
	h.chain = graph.NewChain(h.tap)
	if cfg.Sink != nil {
		h.chain.Append(graph.SinkStage{Sink: cfg.Sink})
	}
	h.chain.Append(graph.NewDestination(h.sel))

	h.activeDeviceID = h.resolveDeviceID(cfg.Device.PreferredDeviceID)

	if b, err := h.sel.Active(); err == nil {
		if err := b.Start(); err != nil {
			h.teardown()
			return nil, fmt.Errorf("engine: start backend: %w", err)
		}
		// The gauge counts open hardware streams; graph-only has none.
		if achieved != GraphOnly {
			h.metrics.ActiveStreams.Add(context.Background(), 1)
		}
	}

	if reg, err := h.metrics.RegisterFlowObserver(h.flowStats); err == nil {
		h.flowReg = reg
	} else {
		h.log.Warn("engine: flow observer registration failed", "error", err)
	}

	if cfg.WatchInterval > 0 {
		w, err := device.NewWatcher(h.mgr, device.Output, h.onDeviceEvent, device.WithInterval(cfg.WatchInterval))
		if err != nil {
			h.log.Warn("engine: hot-plug watcher unavailable", "error", err)
		} else {
			h.watcher = w
		}
	}

	h.log.Info("engine: initialized",
		"mode", achieved.String(),
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"period_frames", cfg.PeriodFrames)
	return h, nil
}

// resolveDeviceID maps an empty preference to the platform default device so
// hot-plug removal of the default is recognised as losing the active device.
func (h *Handle) resolveDeviceID(preferred string) string {
	if preferred != "" {
		return preferred
	}
	devs, err := h.mgr.Enumerate(device.Output)
	if err != nil {
		return ""
	}
	for _, d := range devs {
		if d.Default {
			return d.ID
		}
	}
	return ""
}

// flowStats snapshots the active backend's counters for the metrics
// observer.
func (h *Handle) flowStats() observe.FlowStats {
	b, err := h.sel.Active()
	if err != nil {
		return observe.FlowStats{}
	}
	s := b.Stats()
	return observe.FlowStats{
		FramesPushed:  s.FramesPushed,
		FramesDropped: s.FramesDropped,
		Underruns:     s.Underruns,
	}
}

// Events returns the engine event stream. The channel is never closed;
// consumers select against their own shutdown signal.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// State reports the backend selector's state and, when failed, the cause.
func (h *Handle) State() (backend.State, error) {
	return h.sel.State()
}

// Manager exposes the device manager for diagnostics wiring.
func (h *Handle) Manager() device.Manager {
	return h.mgr
}

// Mode reports the currently established backend mode.
func (h *Handle) Mode() BackendMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

// EnumerateDevices lists the current output devices. The returned snapshot
// carries stable IDs usable with [Handle.SelectDevice].
func (h *Handle) EnumerateDevices() ([]device.Descriptor, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.mu.Unlock()
	return h.mgr.Enumerate(device.Output)
}

// SelectDevice switches the preferred output device. Fails with
// [ErrStreamActive] while a stream is open and with
// [device.ErrDeviceNotFound] for a stale ID. The change takes effect by
// rebuilding the current mode's backend.
func (h *Handle) SelectDevice(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	if b, err := h.sel.Active(); err == nil && b.Streaming() {
		return ErrStreamActive
	}

	devs, err := h.mgr.Enumerate(device.Output)
	if err != nil {
		return fmt.Errorf("engine: select device: %w", err)
	}
	found := false
	for _, d := range devs {
		if d.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("engine: select device %q: %w", id, device.ErrDeviceNotFound)
	}

	stream := device.StreamConfig{
		DeviceID:     id,
		SampleRate:   h.cfg.SampleRate,
		Channels:     h.cfg.Channels,
		PeriodFrames: h.cfg.PeriodFrames,
	}
	if err := h.sel.Reconfigure(stream); err != nil {
		return err
	}
	if err := h.sel.SetMode(h.mode); err != nil {
		return err
	}
	h.activeDeviceID = id
	// A deliberate device change starts the breaker fresh.
	h.ladder.Breaker().Reset()
	h.log.Info("engine: device selected", "device_id", id)
	return nil
}

// SetMode switches the backend mode. Fails with [ErrStreamActive] while a
// stream is open; callers stop, reconfigure, and start.
func (h *Handle) SetMode(m BackendMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if err := h.sel.SetMode(m); err != nil {
		return err
	}
	h.mode = m
	return nil
}

// Start opens the output path for the current mode.
func (h *Handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	b, err := h.sel.Active()
	if err != nil {
		return err
	}
	if b.Streaming() {
		return nil
	}
	if err := b.Start(); err != nil {
		return err
	}
	if h.mode != GraphOnly {
		h.metrics.ActiveStreams.Add(context.Background(), 1)
	}
	return nil
}

// Stop halts the output path. When Stop returns no hardware callback is
// running. Idempotent.
func (h *Handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	b, err := h.sel.Active()
	if err != nil {
		return err
	}
	if !b.Streaming() {
		return nil
	}
	if err := b.Stop(); err != nil {
		return err
	}
	if h.mode != GraphOnly {
		h.metrics.ActiveStreams.Add(context.Background(), -1)
	}
	return nil
}

// PushGraphOutput runs one frame of interleaved samples through the graph
// chain (analysis tap, then the active backend). Non-blocking: a frame the
// backend cannot take this cycle is dropped and counted, never waited on.
func (h *Handle) PushGraphOutput(samples []float32) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	chain := h.chain
	format := h.format
	h.mu.Unlock()

	chain.Process(audio.Frame{
		Samples:   samples,
		Format:    format,
		Timestamp: time.Since(h.epoch),
	})
	return nil
}

// SubmitTask offloads a DSP task to the worker pool. Fails fast with
// [worker.ErrQueueFull] under backpressure.
func (h *Handle) SubmitTask(ctx context.Context, task worker.Task) (*worker.Future, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.mu.Unlock()
	return h.workers.Submit(ctx, task)
}

// LatencyEstimateMS estimates the end-to-end output latency in milliseconds.
// Zero in graph-only mode.
func (h *Handle) LatencyEstimateMS() float64 {
	b, err := h.sel.Active()
	if err != nil {
		return 0
	}
	return float64(b.Latency()) / float64(time.Millisecond)
}

// Stats reports the active backend's accumulated flow counters.
func (h *Handle) Stats() backend.Stats {
	b, err := h.sel.Active()
	if err != nil {
		return backend.Stats{}
	}
	return b.Stats()
}

// onDeviceEvent runs on the watcher goroutine. Removal of the active output
// device downgrades to graph-only: the documented behavior is to keep
// running without hardware rather than crash or stall.
func (h *Handle) onDeviceEvent(ev device.Event) {
	ctx := context.Background()
	switch ev.Type {
	case device.EventAdded:
		h.metrics.RecordDeviceEvent(ctx, "added")
		h.emit(Event{Type: EventDeviceAdded, Device: ev.Device})
	case device.EventRemoved:
		h.metrics.RecordDeviceEvent(ctx, "removed")
		h.emit(Event{Type: EventDeviceRemoved, Device: ev.Device})
		h.handleRemoval(ev.Device)
	}
}

func (h *Handle) handleRemoval(d device.Descriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.mode == GraphOnly || d.ID != h.activeDeviceID {
		return
	}

	from := h.mode
	wasStreaming := false
	if b, err := h.sel.Active(); err == nil {
		wasStreaming = b.Streaming()
	}
	cause := fmt.Errorf("engine: output device %q removed", d.Name)
	h.sel.Fail(cause)
	// Fail tore down the hardware stream; the graph-only replacement opens
	// none, so the gauge drops here and nowhere else on this path.
	if wasStreaming {
		h.metrics.ActiveStreams.Add(context.Background(), -1)
	}
	if err := h.sel.SetMode(backend.ModeGraphOnly); err != nil {
		h.log.Error("engine: downgrade to graph-only failed", "error", err)
		return
	}
	h.mode = GraphOnly
	if b, err := h.sel.Active(); err == nil {
		_ = b.Start()
	}
	h.metrics.RecordDowngrade(context.Background(), from.String(), GraphOnly.String(), "device removed")
	h.emitDowngrade(from, GraphOnly, cause.Error())
	h.log.Warn("engine: downgraded to graph-only", "from", from.String(), "device", d.Name)
}

func (h *Handle) emitDowngrade(from, to BackendMode, cause string) {
	h.emit(Event{Type: EventDowngrade, From: from, To: to, Cause: cause})
}

// emit delivers ev without blocking; a full event channel drops the event.
func (h *Handle) emit(ev Event) {
	select {
	case h.events <- ev:
	default:
	}
}

// Close stops the stream, releases all resources, and frees the process-wide
// initialization slot. Idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	mode := h.mode
	h.mu.Unlock()

	if b, aerr := h.sel.Active(); aerr == nil && b.Streaming() && mode != GraphOnly {
		h.metrics.ActiveStreams.Add(context.Background(), -1)
	}
	err := h.teardown()
	live.Store(false)
	return err
}

func (h *Handle) teardown() error {
	var errs []error

	if h.watcher != nil {
		h.watcher.Stop()
	}
	if h.flowReg != nil {
		if err := h.flowReg.Unregister(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.sel != nil {
		if err := h.sel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.workers != nil {
		h.workers.Close()
	}
	if h.ownedMgr && h.mgr != nil {
		if err := h.mgr.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
