// Package spectrum streams FFT magnitude frames to websocket subscribers for
// visualization frontends.
//
// The broadcaster sits strictly off the audio path: [Broadcaster.Publish] is
// fed from the analysis tap's completion callback, and a slow subscriber gets
// frames dropped rather than applying backpressure upstream. Spectrum frames
// are diagnostics; the newest one is always the only interesting one.
package spectrum

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single frame write to one subscriber.
const writeTimeout = 5 * time.Second

// Frame is the JSON message sent to subscribers.
type Frame struct {
	// Timestamp is the publication time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Bins holds the FFT magnitude per non-negative frequency bin.
	Bins []float64 `json:"bins"`
}

// subscriber buffers one frame; Publish replaces a pending frame instead of
// queueing behind it.
type subscriber struct {
	ch chan []byte
}

// Broadcaster fans spectrum frames out to websocket subscribers. Safe for
// concurrent use. The zero value is not usable; call [NewBroadcaster].
type Broadcaster struct {
	log *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		log:  log,
		subs: make(map[*subscriber]struct{}),
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish encodes mags once and hands the frame to every subscriber. A
// subscriber that still holds an unsent frame has it replaced with this one.
// Publish never blocks.
func (b *Broadcaster) Publish(mags []float64) {
	data, err := json.Marshal(Frame{
		Timestamp: time.Now().UnixMilli(),
		Bins:      mags,
	})
	if err != nil {
		b.log.Warn("spectrum: encode frame", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- data:
		default:
			// Slot full: evict the stale frame, keep the fresh one.
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- data:
			default:
			}
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams frames until the
// client goes away or the broadcaster closes.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.log.Warn("spectrum: websocket accept", "error", err)
		return
	}

	sub := &subscriber{ch: make(chan []byte, 1)}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		c.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		c.Close(websocket.StatusNormalClosure, "done")
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.ch:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Close detaches all subscribers. Active ServeHTTP handlers return once they
// observe their channel closed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}
