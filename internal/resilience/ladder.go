package resilience

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wavecore-audio/wavecore/internal/backend"
)

// DowngradePath returns the modes to attempt, widest first, starting at
// requested. Graph-only is always the terminal rung: it needs no hardware
// and cannot fail a capability probe.
func DowngradePath(requested backend.Mode) []backend.Mode {
	switch requested {
	case backend.ModeHybridNative:
		return []backend.Mode{backend.ModeHybridNative, backend.ModeNativeOnly, backend.ModeGraphOnly}
	case backend.ModeNativeOnly:
		return []backend.Mode{backend.ModeNativeOnly, backend.ModeGraphOnly}
	default:
		return []backend.Mode{backend.ModeGraphOnly}
	}
}

// Ladder walks the downgrade path, routing native open attempts through a
// circuit breaker so a flapping device does not get hammered with reopens.
type Ladder struct {
	breaker *CircuitBreaker
	log     *slog.Logger
}

// NewLadder creates a ladder with a breaker tuned for device open attempts.
func NewLadder(log *slog.Logger) *Ladder {
	if log == nil {
		log = slog.Default()
	}
	return &Ladder{
		breaker: NewCircuitBreaker(CircuitBreakerConfig{
			Name:        "device-open",
			MaxFailures: 3,
		}),
		log: log,
	}
}

// Breaker exposes the underlying breaker, mainly so the engine can reset it
// after a deliberate device change.
func (l *Ladder) Breaker() *CircuitBreaker { return l.breaker }

// Descend tries each mode on the downgrade path from requested until one
// succeeds, and returns the mode that was established. Native attempts run
// through the breaker; when it is open they are skipped rather than tried.
// The returned error is non-nil only when every rung failed, carrying the
// per-mode causes joined.
func (l *Ladder) Descend(requested backend.Mode, try func(backend.Mode) error) (backend.Mode, error) {
	var errs []error
	for _, m := range DowngradePath(requested) {
		var err error
		if m == backend.ModeGraphOnly {
			err = try(m)
		} else {
			err = l.breaker.Execute(func() error { return try(m) })
		}
		if err == nil {
			if m != requested {
				l.log.Warn("backend mode downgraded",
					"requested", requested.String(), "achieved", m.String())
			}
			return m, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m, err))
		l.log.Warn("backend mode unavailable", "mode", m.String(), "error", err)
	}
	return 0, fmt.Errorf("resilience: no backend mode available: %w", errors.Join(errs...))
}
