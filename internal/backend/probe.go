//go:build !js

package backend

import (
	"fmt"

	"github.com/wavecore-audio/wavecore/pkg/device"
)

// probeNative checks whether a native output stream could be opened: the
// platform audio subsystem must enumerate and at least one output device must
// exist.
func probeNative(mgr device.Manager) error {
	devs, err := mgr.Enumerate(device.Output)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNativeUnavailable, err)
	}
	if len(devs) == 0 {
		return fmt.Errorf("%w: no output devices", ErrNativeUnavailable)
	}
	return nil
}
