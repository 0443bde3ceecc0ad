// Package reconcile keeps the client's view of the board: the last
// server-confirmed state plus an optimistic queue of local placements.
package reconcile

import (
	"sort"
	"sync"

	"geocanvas.io/internal/geo"
	"geocanvas.io/internal/protocol"
)

// Layer tells which layer produced a cell value.
type Layer int

const (
	LayerNone Layer = iota
	LayerCommitted
	LayerQueued
)

// Cell is a client-side cell value. Stamp is the server string as
// received, empty for queued entries.
type Cell struct {
	Color string
	Owner string
	Stamp string
}

type Reconciler struct {
	mu sync.Mutex

	gridMeters float64
	committed  map[geo.CellKey]Cell
	queued     map[geo.CellKey]protocol.Pixel
}

// New starts empty. gridMeters is a placeholder until the first
// snapshot arrives; the server's value always replaces it.
func New(gridMeters float64) *Reconciler {
	return &Reconciler{
		gridMeters: gridMeters,
		committed:  map[geo.CellKey]Cell{},
		queued:     map[geo.CellKey]protocol.Pixel{},
	}
}

// ApplySnapshot replaces committed state wholesale and discards every
// queued entry. Full resync is the only recovery path after a gap.
func (r *Reconciler) ApplySnapshot(gridMeters float64, records []protocol.CellRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gridMeters > 0 {
		r.gridMeters = gridMeters
	}
	r.committed = make(map[geo.CellKey]Cell, len(records))
	for _, rec := range records {
		r.committed[geo.CellKey{I: rec.I, J: rec.J}] = Cell{Color: rec.Color, Owner: rec.OwnerName, Stamp: rec.Timestamp}
	}
	r.queued = map[geo.CellKey]protocol.Pixel{}
}

// ApplyPixels commits the listed cells. The queued entry for a listed
// key is dropped even when its pending color differs: the server is the
// sole arbiter.
func (r *Reconciler) ApplyPixels(records []protocol.CellRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		key := geo.CellKey{I: rec.I, J: rec.J}
		if rec.Color == protocol.EraseColor {
			delete(r.committed, key)
		} else {
			r.committed[key] = Cell{Color: rec.Color, Owner: rec.OwnerName, Stamp: rec.Timestamp}
		}
		delete(r.queued, key)
	}
}

// Queue stages a placement. Indices snap to the grid rule; restaging a
// key replaces its pending value. Budget admission is the caller's job.
func (r *Reconciler) Queue(p protocol.Pixel) geo.CellKey {
	key := geo.CellKey{I: geo.NormalizeIndex(p.I), J: geo.NormalizeIndex(p.J)}
	p.I, p.J = float64(key.I), float64(key.J)
	r.mu.Lock()
	r.queued[key] = p
	r.mu.Unlock()
	return key
}

// Cancel removes a queued entry before submission. Reports whether one
// existed so the caller can refund its budget unit.
func (r *Reconciler) Cancel(key geo.CellKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queued[key]; !ok {
		return false
	}
	delete(r.queued, key)
	return true
}

// Submit drains the queue into one paint batch, cleared optimistically
// before any confirmation. Returns nil when nothing is queued.
func (r *Reconciler) Submit() []protocol.Pixel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queued) == 0 {
		return nil
	}
	out := make([]protocol.Pixel, 0, len(r.queued))
	for _, p := range r.queued {
		out = append(out, p)
	}
	sort.Slice(out, func(a, z int) bool {
		if out[a].I != out[z].I {
			return out[a].I < out[z].I
		}
		return out[a].J < out[z].J
	})
	r.queued = map[geo.CellKey]protocol.Pixel{}
	return out
}

// At reads one cell; the queue overlays committed state.
func (r *Reconciler) At(key geo.CellKey) (Cell, Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.queued[key]; ok {
		return Cell{Color: p.Color, Owner: p.OwnerName}, LayerQueued
	}
	if c, ok := r.committed[key]; ok {
		return c, LayerCommitted
	}
	return Cell{}, LayerNone
}

func (r *Reconciler) CommittedLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func (r *Reconciler) QueuedLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queued)
}

func (r *Reconciler) GridMeters() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gridMeters
}
