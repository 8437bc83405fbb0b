package device

import (
	"log/slog"
	"sync"
	"time"
)

// EventType classifies hot-plug events emitted by a [Watcher].
type EventType int

const (
	// EventAdded is emitted when a device appears between two enumerations.
	EventAdded EventType = iota

	// EventRemoved is emitted when a device disappears between two
	// enumerations. Descriptors referencing it are stale from this point.
	EventRemoved
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event describes a single device hot-plug change.
type Event struct {
	Type   EventType
	Device Descriptor
}

// Watcher polls a [Manager] for device changes and invokes a callback with
// the diff. Polling (rather than platform notifications) keeps the watcher
// uniform across audio backends that expose no change callback.
type Watcher struct {
	mgr      Manager
	dir      Direction
	interval time.Duration
	onChange func(Event)

	mu       sync.Mutex
	seen     map[string]Descriptor
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 2 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher starts polling mgr for hot-plug changes in the given direction.
// The initial enumeration seeds the known-device set without emitting events;
// onChange fires once per added or removed device afterwards, from the
// watcher's goroutine. Call [Watcher.Stop] to halt polling.
func NewWatcher(mgr Manager, dir Direction, onChange func(Event), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		mgr:      mgr,
		dir:      dir,
		interval: 2 * time.Second,
		onChange: onChange,
		seen:     make(map[string]Descriptor),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	initial, err := mgr.Enumerate(dir)
	if err != nil {
		return nil, err
	}
	for _, d := range initial {
		w.seen[d.ID] = d
	}

	go w.poll()
	return w, nil
}

// Known returns a snapshot of the devices present at the last poll.
func (w *Watcher) Known() []Descriptor {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Descriptor, 0, len(w.seen))
	for _, d := range w.seen {
		out = append(out, d)
	}
	return out
}

// Stop halts the watcher. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

// poll runs in a background goroutine until Stop is called.
func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check re-enumerates and emits one event per difference, keyed by device ID
// (enumeration order is meaningless across calls).
func (w *Watcher) check() {
	current, err := w.mgr.Enumerate(w.dir)
	if err != nil {
		slog.Warn("device watcher: enumeration failed", "direction", w.dir, "err", err)
		return
	}

	currentByID := make(map[string]Descriptor, len(current))
	for _, d := range current {
		currentByID[d.ID] = d
	}

	var events []Event
	w.mu.Lock()
	for id, d := range w.seen {
		if _, ok := currentByID[id]; !ok {
			events = append(events, Event{Type: EventRemoved, Device: d})
		}
	}
	for id, d := range currentByID {
		if _, ok := w.seen[id]; !ok {
			events = append(events, Event{Type: EventAdded, Device: d})
		}
	}
	w.seen = currentByID
	w.mu.Unlock()

	// Invoke callbacks outside the lock so handlers can call Known().
	for _, ev := range events {
		slog.Info("device hot-plug", "event", ev.Type, "device", ev.Device.Name, "id", ev.Device.ID)
		if w.onChange != nil {
			w.onChange(ev)
		}
	}
}
