// Command wavecore runs the audio engine with a diagnostics HTTP endpoint
// (health, Prometheus metrics, live spectrum websocket).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wavecore-audio/wavecore/internal/backend"
	"github.com/wavecore-audio/wavecore/internal/config"
	"github.com/wavecore-audio/wavecore/internal/health"
	"github.com/wavecore-audio/wavecore/internal/observe"
	"github.com/wavecore-audio/wavecore/internal/spectrum"
	"github.com/wavecore-audio/wavecore/pkg/device"
	"github.com/wavecore-audio/wavecore/pkg/engine"
	"github.com/wavecore-audio/wavecore/pkg/worker"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "list output devices and exit")
	toneHz := flag.Float64("tone", 0, "generate a test tone at this frequency (Hz) through the graph")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "wavecore: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "wavecore: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// A LevelVar so the config watcher can flip verbosity without restart.
	leveler := new(slog.LevelVar)
	leveler.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: leveler}))
	slog.SetDefault(logger)

	slog.Info("wavecore starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"mode", cfg.Engine.Mode,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "wavecore",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("telemetry init failed", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Spectrum broadcaster ──────────────────────────────────────────────────
	broadcaster := spectrum.NewBroadcaster(logger)
	defer broadcaster.Close()

	// ── Engine ────────────────────────────────────────────────────────────────
	mode, err := backend.ParseMode(cfg.Engine.Mode)
	if err != nil {
		slog.Error("invalid backend mode", "err", err)
		return 1
	}

	h, err := engine.Initialize(engine.Config{
		Device: engine.DeviceSelectionConfig{
			PreferredDeviceID: cfg.Device.PreferredID,
			PreferredMode:     mode,
		},
		SampleRate:   cfg.Device.SampleRate,
		Channels:     cfg.Device.Channels,
		PeriodFrames: cfg.Device.PeriodFrames,
		RingFrames:   cfg.Engine.RingFrames,
		PoolBuffers:  cfg.Engine.PoolBuffers,
		FFTSize:      cfg.Analysis.FFTSize,
		Workers: worker.Config{
			Min:       cfg.Workers.Min,
			Max:       cfg.Workers.Max,
			QueueSize: cfg.Workers.QueueSize,
		},
		WatchInterval: cfg.Device.WatchInterval.Std(),
		Logger:        logger,
		OnSpectrum:    broadcaster.Publish,
	})
	if err != nil {
		slog.Error("engine init failed", "err", err)
		return 1
	}
	defer h.Close()

	slog.Info("engine ready",
		"mode", h.Mode().String(),
		"latency_ms", h.LatencyEstimateMS(),
	)
	printStartupSummary(cfg, h)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(h, leveler, config.Diff(old, new))
	})
	if err != nil {
		slog.Error("config watcher failed", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Diagnostics HTTP server ───────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(
		health.BackendChecker(h),
		health.DeviceChecker(h.Manager()),
	).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws/spectrum", broadcaster)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("diagnostics server listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(sctx)
	})

	g.Go(func() error {
		logEvents(gctx, h)
		return nil
	})

	if *toneHz > 0 {
		g.Go(func() error {
			generateTone(gctx, h, cfg, *toneHz)
			return nil
		})
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyConfigChange applies a hot config change to the running engine. The
// stream stops for mode and device changes; geometry changes need a restart.
func applyConfigChange(h *engine.Handle, leveler *slog.LevelVar, d config.ConfigDiff) {
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		leveler.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ModeChanged {
		mode, err := backend.ParseMode(d.NewMode)
		if err != nil {
			slog.Warn("config reload: invalid mode", "mode", d.NewMode, "err", err)
		} else if err := switchMode(h, mode); err != nil {
			slog.Warn("config reload: mode change failed", "mode", d.NewMode, "err", err)
		} else {
			slog.Info("backend mode changed", "mode", d.NewMode)
		}
	}
	if d.DeviceChanged && d.NewDevice.PreferredID != "" {
		if err := switchDevice(h, d.NewDevice.PreferredID); err != nil {
			slog.Warn("config reload: device change failed", "device", d.NewDevice.PreferredID, "err", err)
		} else {
			slog.Info("output device changed", "device", d.NewDevice.PreferredID)
		}
	}
	if d.RequiresRestart {
		slog.Warn("config reload: geometry or worker sizing changed — restart required to apply")
	}
}

func switchMode(h *engine.Handle, mode engine.BackendMode) error {
	if err := h.Stop(); err != nil {
		return err
	}
	if err := h.SetMode(mode); err != nil {
		return err
	}
	return h.Start()
}

func switchDevice(h *engine.Handle, id string) error {
	if err := h.Stop(); err != nil {
		return err
	}
	if err := h.SelectDevice(id); err != nil {
		return err
	}
	return h.Start()
}

// logEvents drains the engine event stream until ctx is cancelled.
func logEvents(ctx context.Context, h *engine.Handle) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.Events():
			switch ev.Type {
			case engine.EventDowngrade:
				slog.Warn("backend downgraded",
					"from", ev.From.String(), "to", ev.To.String(), "cause", ev.Cause)
			case engine.EventDeviceAdded:
				slog.Info("output device added", "id", ev.Device.ID, "name", ev.Device.Name)
			case engine.EventDeviceRemoved:
				slog.Info("output device removed", "id", ev.Device.ID, "name", ev.Device.Name)
			}
		}
	}
}

// generateTone pushes a sine wave through the graph at the hardware period
// cadence so the spectrum websocket and native output have something to show.
func generateTone(ctx context.Context, h *engine.Handle, cfg *config.Config, freq float64) {
	rate := cfg.Device.SampleRate
	channels := cfg.Device.Channels
	period := cfg.Device.PeriodFrames

	frame := make([]float32, period*channels)
	interval := time.Duration(period) * time.Second / time.Duration(rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var phase float64
	step := 2 * math.Pi * freq / float64(rate)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := 0; i < period; i++ {
				s := float32(0.2 * math.Sin(phase))
				phase += step
				for c := 0; c < channels; c++ {
					frame[i*channels+c] = s
				}
			}
			if phase > 2*math.Pi {
				phase -= 2 * math.Pi
			}
			if err := h.PushGraphOutput(frame); err != nil {
				return
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, h *engine.Handle) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         wavecore — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Mode", h.Mode().String())
	dev := cfg.Device.PreferredID
	if dev == "" {
		dev = "(default)"
	}
	printRow("Device", dev)
	printRow("Stream", fmt.Sprintf("%d Hz / %d ch / %d fr", cfg.Device.SampleRate, cfg.Device.Channels, cfg.Device.PeriodFrames))
	printRow("Latency", fmt.Sprintf("%.2f ms", h.LatencyEstimateMS()))
	printRow("FFT size", fmt.Sprintf("%d", cfg.Analysis.FFTSize))
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
}

// printDevices enumerates output devices on stdout for the -list-devices flag.
func printDevices() int {
	mgr, err := device.NewMalgo()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wavecore: %v\n", err)
		return 1
	}
	defer mgr.Close()

	devs, err := mgr.Enumerate(device.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wavecore: %v\n", err)
		return 1
	}
	if len(devs) == 0 {
		fmt.Println("no output devices found")
		return 0
	}
	for _, d := range devs {
		def := " "
		if d.Default {
			def = "*"
		}
		fmt.Printf("%s %-40s %s  %d-%d Hz, %d-%d ch\n",
			def, d.Name, d.ID, d.MinSampleRate, d.MaxSampleRate, d.MinChannels, d.MaxChannels)
	}
	return 0
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
