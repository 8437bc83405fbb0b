package device_test

import (
	"errors"
	"testing"

	"github.com/wavecore-audio/wavecore/pkg/device"
	"github.com/wavecore-audio/wavecore/pkg/device/mock"
)

func TestDescriptorSupports(t *testing.T) {
	t.Parallel()

	d := device.Descriptor{
		MinSampleRate: 44100,
		MaxSampleRate: 96000,
		MinChannels:   1,
		MaxChannels:   2,
	}

	cases := []struct {
		name string
		cfg  device.StreamConfig
		want bool
	}{
		{"in range", device.StreamConfig{SampleRate: 48000, Channels: 2}, true},
		{"rate low", device.StreamConfig{SampleRate: 22050, Channels: 2}, false},
		{"rate high", device.StreamConfig{SampleRate: 192000, Channels: 2}, false},
		{"channels high", device.StreamConfig{SampleRate: 48000, Channels: 6}, false},
		{"channels low", device.StreamConfig{SampleRate: 48000, Channels: 0}, false},
		{"boundaries", device.StreamConfig{SampleRate: 44100, Channels: 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.Supports(tc.cfg); got != tc.want {
				t.Fatalf("Supports(%+v) = %v, want %v", tc.cfg, got, tc.want)
			}
		})
	}
}

// TestEnumerateThenSelectNeverStale: opening with an ID returned by the
// immediately preceding enumeration must not fail with ErrDeviceNotFound.
func TestEnumerateThenSelectNeverStale(t *testing.T) {
	t.Parallel()

	mgr := &mock.Manager{Devices: []device.Descriptor{outputDevice("dev-1", "Speakers")}}

	descs, err := mgr.Enumerate(device.Output)
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 {
		t.Fatalf("Enumerate returned %d devices, want 1", len(descs))
	}

	_, err = mgr.Open(device.StreamConfig{
		DeviceID:   descs[0].ID,
		SampleRate: 48000,
		Channels:   2,
	}, func([]float32, int) {})
	if errors.Is(err, device.ErrDeviceNotFound) {
		t.Fatal("Open with freshly enumerated ID failed with ErrDeviceNotFound")
	}
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
}

func TestOpenStaleIDFails(t *testing.T) {
	t.Parallel()

	mgr := &mock.Manager{Devices: []device.Descriptor{outputDevice("dev-1", "Speakers")}}
	_, err := mgr.Open(device.StreamConfig{DeviceID: "gone", SampleRate: 48000, Channels: 2}, func([]float32, int) {})
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Fatalf("err = %v, want ErrDeviceNotFound", err)
	}
}

func TestOpenUnsupportedConfigFails(t *testing.T) {
	t.Parallel()

	mgr := &mock.Manager{Devices: []device.Descriptor{outputDevice("dev-1", "Speakers")}}
	_, err := mgr.Open(device.StreamConfig{DeviceID: "dev-1", SampleRate: 48000, Channels: 6}, func([]float32, int) {})
	if !errors.Is(err, device.ErrUnsupportedConfig) {
		t.Fatalf("err = %v, want ErrUnsupportedConfig", err)
	}
}

func TestMockStreamTickDrivesCallback(t *testing.T) {
	t.Parallel()

	mgr := &mock.Manager{}
	var got int
	st, err := mgr.Open(device.StreamConfig{SampleRate: 48000, Channels: 2, PeriodFrames: 128},
		func(out []float32, frames int) {
			got = frames
			for i := range out {
				out[i] = 0.5
			}
		})
	if err != nil {
		t.Fatal(err)
	}

	ms := st.(*mock.Stream)

	// Stopped stream: callback must not fire.
	ms.Tick(128)
	if got != 0 {
		t.Fatal("callback fired before Start")
	}

	if err := st.Start(); err != nil {
		t.Fatal(err)
	}
	ms.Tick(128)
	if got != 128 {
		t.Fatalf("callback frames = %d, want 128", got)
	}
	if len(ms.Output) != 256 {
		t.Fatalf("output samples = %d, want 256 (128 frames x 2 ch)", len(ms.Output))
	}

	// Stop is idempotent and silences further ticks.
	if err := st.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := st.Stop(); err != nil {
		t.Fatal(err)
	}
	before := len(ms.Output)
	ms.Tick(128)
	if len(ms.Output) != before {
		t.Fatal("callback fired after Stop returned")
	}
}
