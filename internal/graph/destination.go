package graph

import (
	"github.com/wavecore-audio/wavecore/internal/backend"
	"github.com/wavecore-audio/wavecore/pkg/audio"
)

// Destination is the chain's terminal: it hands each finished frame to the
// active backend. It implements both [Stage] (for use inside a chain) and
// [audio.Sink] (for callers that drive it directly).
type Destination struct {
	sel *backend.Selector
}

// NewDestination builds a destination over the backend selector. Resolving
// the active backend per frame keeps the destination valid across mode
// switches without rewiring the chain.
func NewDestination(sel *backend.Selector) *Destination {
	return &Destination{sel: sel}
}

// Process implements [Stage].
func (d *Destination) Process(f audio.Frame) audio.Frame {
	d.Consume(f)
	return f
}

// Consume implements [audio.Sink]. A frame arriving while no backend is
// active is dropped; the graph thread never blocks on backend state.
func (d *Destination) Consume(f audio.Frame) {
	b, err := d.sel.Active()
	if err != nil {
		return
	}
	_ = b.Push(f.Samples)
}
