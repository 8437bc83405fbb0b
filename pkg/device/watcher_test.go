package device_test

import (
	"sync"
	"testing"
	"time"

	"github.com/wavecore-audio/wavecore/pkg/device"
	"github.com/wavecore-audio/wavecore/pkg/device/mock"
)

func outputDevice(id, name string) device.Descriptor {
	return device.Descriptor{
		ID:            id,
		Name:          name,
		Direction:     device.Output,
		MinSampleRate: 8000,
		MaxSampleRate: 192000,
		MinChannels:   1,
		MaxChannels:   2,
	}
}

// eventCollector gathers watcher events thread-safely.
type eventCollector struct {
	mu     sync.Mutex
	events []device.Event
}

func (c *eventCollector) add(ev device.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *eventCollector) snapshot() []device.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]device.Event, len(c.events))
	copy(out, c.events)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcherSeedsWithoutEvents(t *testing.T) {
	t.Parallel()

	mgr := &mock.Manager{Devices: []device.Descriptor{outputDevice("a", "A")}}
	var col eventCollector
	w, err := device.NewWatcher(mgr, device.Output, col.add, device.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if got := len(w.Known()); got != 1 {
		t.Fatalf("Known() = %d devices, want 1", got)
	}

	// No changes: several poll cycles later there must still be no events.
	time.Sleep(50 * time.Millisecond)
	if evs := col.snapshot(); len(evs) != 0 {
		t.Fatalf("got %d events on an unchanged device list, want 0", len(evs))
	}
}

func TestWatcherDetectsAddAndRemove(t *testing.T) {
	t.Parallel()

	mgr := &mock.Manager{Devices: []device.Descriptor{outputDevice("a", "A")}}
	var col eventCollector
	w, err := device.NewWatcher(mgr, device.Output, col.add, device.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Hot-plug a second device.
	mgr.SetDevices([]device.Descriptor{outputDevice("a", "A"), outputDevice("b", "B")})
	waitFor(t, func() bool { return len(col.snapshot()) >= 1 })

	evs := col.snapshot()
	if evs[0].Type != device.EventAdded || evs[0].Device.ID != "b" {
		t.Fatalf("event[0] = %v %q, want added b", evs[0].Type, evs[0].Device.ID)
	}

	// Unplug the first device.
	mgr.SetDevices([]device.Descriptor{outputDevice("b", "B")})
	waitFor(t, func() bool { return len(col.snapshot()) >= 2 })

	evs = col.snapshot()
	if evs[1].Type != device.EventRemoved || evs[1].Device.ID != "a" {
		t.Fatalf("event[1] = %v %q, want removed a", evs[1].Type, evs[1].Device.ID)
	}
}

func TestWatcherInitialEnumerationError(t *testing.T) {
	t.Parallel()

	mgr := &mock.Manager{EnumerateError: device.ErrEnumeration}
	if _, err := device.NewWatcher(mgr, device.Output, nil); err == nil {
		t.Fatal("expected error when initial enumeration fails")
	}
}
