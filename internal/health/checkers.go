package health

import (
	"context"
	"fmt"

	"github.com/wavecore-audio/wavecore/internal/backend"
	"github.com/wavecore-audio/wavecore/pkg/device"
)

// StateReporter is the slice of the backend selector the checker needs.
// The engine handle implements it too.
type StateReporter interface {
	State() (backend.State, error)
}

// BackendChecker reports ready while the selector is in a running state.
// A Failed selector carries its cause into the check result.
func BackendChecker(sel StateReporter) Checker {
	return Checker{
		Name: "backend",
		Check: func(context.Context) error {
			st, cause := sel.State()
			switch st {
			case backend.StateFailed:
				return fmt.Errorf("failed: %w", cause)
			case backend.StateUninitialized:
				return fmt.Errorf("not initialized")
			default:
				return nil
			}
		},
	}
}

// DeviceChecker reports ready while the platform audio subsystem enumerates.
// An empty device list is still healthy: graph-only mode needs no devices.
func DeviceChecker(mgr device.Manager) Checker {
	return Checker{
		Name: "devices",
		Check: func(context.Context) error {
			if _, err := mgr.Enumerate(device.Output); err != nil {
				return err
			}
			return nil
		},
	}
}
