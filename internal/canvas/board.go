// Package canvas holds the authoritative cell state and the message
// loop that mutates it.
package canvas

import (
	"encoding/json"
	"io"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"geocanvas.io/internal/geo"
	"geocanvas.io/internal/protocol"
)

type BoardConfig struct {
	GridMeters float64
	OutBuffer  int // per-client send buffer, frames
}

type JoinRequest struct {
	Name string // remote address, logs only
	Out  chan []byte
	Resp chan JoinResponse // must be buffered
}

type JoinResponse struct {
	SessionID uint64
}

type PaintEnvelope struct {
	SessionID uint64
	Pixels    []protocol.Pixel
}

// Cell is the current occupant of one grid cell.
type Cell struct {
	Color string
	Owner string
	Stamp time.Time
}

// BatchJournal records every applied batch. Implemented in
// internal/persistence/journal.
type BatchJournal interface {
	Append(at time.Time, pixels []protocol.CellRecord) error
}

// PlacementIndex keeps a queryable copy of the latest placement per
// cell. Implemented in internal/persistence/indexdb.
type PlacementIndex interface {
	RecordBatch(pixels []protocol.CellRecord)
}

// Board is a single-threaded authoritative store.
// All state must be accessed only from the board loop goroutine.
type Board struct {
	cfg BoardConfig

	cells   map[geo.CellKey]Cell
	clients map[uint64]*clientState

	inbox chan PaintEnvelope
	join  chan JoinRequest
	leave chan uint64
	stop  chan struct{}

	nextSessionNum atomic.Uint64
	cellCount      atomic.Int64
	clientCount    atomic.Int64
	appliedBatches atomic.Uint64
	appliedCells   atomic.Uint64

	log *log.Logger
	now func() time.Time

	// Optional sinks (may be nil). Writing must stay off-thread.
	persistSink chan<- []protocol.CellRecord
	journal     BatchJournal
	index       PlacementIndex
}

type clientState struct {
	Name string
	Out  chan []byte
}

// BoardStats is a read-only counter snapshot, safe from any goroutine.
type BoardStats struct {
	Cells          int64  `json:"cells"`
	Clients        int64  `json:"clients"`
	AppliedBatches uint64 `json:"applied_batches"`
	AppliedCells   uint64 `json:"applied_cells"`
}

// New builds a board seeded with records from the persistence gateway.
// Seed records are trusted: indices integral, colors non-sentinel.
func New(cfg BoardConfig, seed []protocol.CellRecord, logger *log.Logger) *Board {
	if cfg.GridMeters <= 0 {
		cfg.GridMeters = 25
	}
	if cfg.OutBuffer <= 0 {
		cfg.OutBuffer = 256
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	b := &Board{
		cfg:     cfg,
		cells:   map[geo.CellKey]Cell{},
		clients: map[uint64]*clientState{},
		inbox:   make(chan PaintEnvelope, 1024),
		join:    make(chan JoinRequest, 64),
		leave:   make(chan uint64, 64),
		stop:    make(chan struct{}),
		log:     logger,
		now:     time.Now,
	}
	for _, rec := range seed {
		stamp, err := protocol.ParseStamp(rec.Timestamp)
		if err != nil {
			stamp = b.now().UTC()
		}
		b.cells[geo.CellKey{I: rec.I, J: rec.J}] = Cell{Color: rec.Color, Owner: rec.OwnerName, Stamp: stamp}
	}
	b.cellCount.Store(int64(len(b.cells)))
	return b
}

func (b *Board) SetPersistSink(ch chan<- []protocol.CellRecord) { b.persistSink = ch }
func (b *Board) SetJournal(j BatchJournal)                      { b.journal = j }
func (b *Board) SetIndex(ix PlacementIndex)                     { b.index = ix }

func (b *Board) Inbox() chan<- PaintEnvelope { return b.inbox }
func (b *Board) Join() chan<- JoinRequest    { return b.join }
func (b *Board) Leave() chan<- uint64        { return b.leave }

func (b *Board) GridMeters() float64 { return b.cfg.GridMeters }
func (b *Board) CellCount() int64    { return b.cellCount.Load() }

func (b *Board) Stats() BoardStats {
	return BoardStats{
		Cells:          b.cellCount.Load(),
		Clients:        b.clientCount.Load(),
		AppliedBatches: b.appliedBatches.Load(),
		AppliedCells:   b.appliedCells.Load(),
	}
}

func (b *Board) handleJoin(req JoinRequest) {
	if req.Out == nil {
		return
	}
	id := b.nextSessionNum.Add(1)
	b.clients[id] = &clientState{Name: req.Name, Out: req.Out}
	b.clientCount.Store(int64(len(b.clients)))

	// The snapshot is the first frame of every connection. Later
	// broadcasts queue behind it on the same FIFO channel.
	buf, err := json.Marshal(protocol.SnapshotMsg{
		Type:       protocol.TypeSnapshot,
		GridMeters: b.cfg.GridMeters,
		Pixels:     b.snapshotRecords(),
	})
	if err == nil {
		b.enqueue(id, buf)
	}
	if req.Resp != nil {
		req.Resp <- JoinResponse{SessionID: id}
	}
}

func (b *Board) handleLeave(id uint64) {
	cl, ok := b.clients[id]
	if !ok {
		return
	}
	delete(b.clients, id)
	b.clientCount.Store(int64(len(b.clients)))
	close(cl.Out)
}

// enqueue is fire and forget: a client whose buffer is full is dropped
// rather than allowed to stall the loop. It reconnects to a fresh
// snapshot.
func (b *Board) enqueue(id uint64, buf []byte) {
	cl := b.clients[id]
	if cl == nil {
		return
	}
	select {
	case cl.Out <- buf:
	default:
		b.log.Printf("dropping slow client %d (%s)", id, cl.Name)
		delete(b.clients, id)
		b.clientCount.Store(int64(len(b.clients)))
		close(cl.Out)
	}
}

func (b *Board) broadcast(buf []byte) {
	for id := range b.clients {
		b.enqueue(id, buf)
	}
}

func (b *Board) snapshotRecords() []protocol.CellRecord {
	out := make([]protocol.CellRecord, 0, len(b.cells))
	for k, c := range b.cells {
		out = append(out, protocol.CellRecord{
			I:         k.I,
			J:         k.J,
			Color:     c.Color,
			OwnerName: c.Owner,
			Timestamp: protocol.FormatStamp(c.Stamp),
		})
	}
	sort.Slice(out, func(a, z int) bool {
		if out[a].I != out[z].I {
			return out[a].I < out[z].I
		}
		return out[a].J < out[z].J
	})
	return out
}

// FinalRecords reads the store directly. Only safe once Run has
// returned; used for the shutdown save.
func (b *Board) FinalRecords() []protocol.CellRecord { return b.snapshotRecords() }
