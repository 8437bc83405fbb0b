//go:build js

package backend

import "github.com/wavecore-audio/wavecore/pkg/device"

// probeNative always fails under js: the browser target has no native stream
// access, so only graph-only mode is ever available.
func probeNative(device.Manager) error {
	return ErrNativeUnavailable
}
