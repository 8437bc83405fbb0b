// Package observe provides application-wide observability primitives for
// wavecore: OpenTelemetry metrics, tracing for the initialization path, and
// HTTP middleware for the diagnostics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// Nothing in this package is called from the hardware thread. Real-time code
// keeps plain atomic counters; the engine polls those into observable
// instruments registered with [Metrics.RegisterFlowObserver].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all wavecore metrics.
const meterName = "github.com/wavecore-audio/wavecore"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	meter metric.Meter

	// --- Latency histograms ---

	// TaskDuration tracks worker-pool task execution latency.
	TaskDuration metric.Float64Histogram

	// SpectrumDuration tracks FFT analysis latency.
	SpectrumDuration metric.Float64Histogram

	// --- Counters ---

	// PoolExhausted counts analysis cycles skipped because no pooled
	// buffer was free.
	PoolExhausted metric.Int64Counter

	// QueueFull counts analysis cycles skipped because the worker queue
	// was full.
	QueueFull metric.Int64Counter

	// WorkerRespawns counts workers replaced after a task panic.
	WorkerRespawns metric.Int64Counter

	// Downgrades counts backend mode downgrades. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...), attribute.String("cause", ...)
	Downgrades metric.Int64Counter

	// DeviceEvents counts hot-plug events. Use with attribute:
	//   attribute.String("type", "added"|"removed")
	DeviceEvents metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of open hardware streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// per-quantum audio work: a 128-frame period at 48 kHz is ~2.7 ms.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	// Histograms.
	if met.TaskDuration, err = m.Float64Histogram("wavecore.task.duration",
		metric.WithDescription("Latency of worker-pool task execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpectrumDuration, err = m.Float64Histogram("wavecore.spectrum.duration",
		metric.WithDescription("Latency of FFT spectrum analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PoolExhausted, err = m.Int64Counter("wavecore.analysis.pool_exhausted",
		metric.WithDescription("Analysis cycles skipped because the buffer pool was empty."),
	); err != nil {
		return nil, err
	}
	if met.QueueFull, err = m.Int64Counter("wavecore.analysis.queue_full",
		metric.WithDescription("Analysis cycles skipped because the worker queue was full."),
	); err != nil {
		return nil, err
	}
	if met.WorkerRespawns, err = m.Int64Counter("wavecore.worker.respawns",
		metric.WithDescription("Workers replaced after a task panic."),
	); err != nil {
		return nil, err
	}
	if met.Downgrades, err = m.Int64Counter("wavecore.backend.downgrades",
		metric.WithDescription("Backend mode downgrades by from, to, and cause."),
	); err != nil {
		return nil, err
	}
	if met.DeviceEvents, err = m.Int64Counter("wavecore.device.events",
		metric.WithDescription("Device hot-plug events by type."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("wavecore.active_streams",
		metric.WithDescription("Number of open hardware streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("wavecore.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// FlowStats is a point-in-time snapshot of the real-time flow counters,
// polled from the backend's atomics at collection time.
type FlowStats struct {
	FramesPushed  uint64
	FramesDropped uint64
	Underruns     uint64
}

// RegisterFlowObserver registers observable counters that pull frame flow
// stats from read at every metrics collection. This keeps the hardware
// callback free of metric calls: it bumps atomics, collection reads them.
func (m *Metrics) RegisterFlowObserver(read func() FlowStats) (metric.Registration, error) {
	pushed, err := m.meter.Int64ObservableCounter("wavecore.frames.pushed",
		metric.WithDescription("Frames accepted at the ring producer side."),
	)
	if err != nil {
		return nil, err
	}
	dropped, err := m.meter.Int64ObservableCounter("wavecore.frames.dropped",
		metric.WithDescription("Frames rejected at the ring producer side (overflow)."),
	)
	if err != nil {
		return nil, err
	}
	underruns, err := m.meter.Int64ObservableCounter("wavecore.underruns",
		metric.WithDescription("Hardware callbacks that found the ring empty and emitted silence."),
	)
	if err != nil {
		return nil, err
	}

	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := read()
		o.ObserveInt64(pushed, int64(s.FramesPushed))
		o.ObserveInt64(dropped, int64(s.FramesDropped))
		o.ObserveInt64(underruns, int64(s.Underruns))
		return nil
	}, pushed, dropped, underruns)
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordDowngrade records a backend mode downgrade with the standard
// attribute set.
func (m *Metrics) RecordDowngrade(ctx context.Context, from, to, cause string) {
	m.Downgrades.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
			attribute.String("cause", cause),
		),
	)
}

// RecordDeviceEvent records a hot-plug event by type.
func (m *Metrics) RecordDeviceEvent(ctx context.Context, eventType string) {
	m.DeviceEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}
