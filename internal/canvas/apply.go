package canvas

import (
	"encoding/json"
	"math"

	"geocanvas.io/internal/geo"
	"geocanvas.io/internal/protocol"
)

// maxIndex bounds wire indices to what the projected plane can hold at
// any usable grid size. Values beyond it would overflow the int64
// conversion, so they are dropped as invalid.
const maxIndex = 1 << 40

func (b *Board) handlePaint(env PaintEnvelope) {
	applied := b.applyPixels(env.Pixels)
	if len(applied) == 0 {
		// Nothing changed: no broadcast, no persistence write.
		return
	}
	b.appliedBatches.Add(1)
	b.appliedCells.Add(uint64(len(applied)))

	buf, err := json.Marshal(protocol.PixelsMsg{Type: protocol.TypePixels, Pixels: applied})
	if err != nil {
		return
	}
	b.broadcast(buf)
	b.afterApply(applied)
}

// applyPixels validates, snaps and applies one batch in receive order.
// The returned slice holds only the entries that changed the board.
func (b *Board) applyPixels(pixels []protocol.Pixel) []protocol.CellRecord {
	var applied []protocol.CellRecord
	for _, p := range pixels {
		if !validPixel(p) {
			continue
		}
		key := geo.CellKey{I: geo.NormalizeIndex(p.I), J: geo.NormalizeIndex(p.J)}
		stamp := b.now().UTC()

		if p.Color == protocol.EraseColor {
			if _, ok := b.cells[key]; !ok {
				// Erasing an empty cell is a no-op, not a change.
				continue
			}
			delete(b.cells, key)
			applied = append(applied, protocol.CellRecord{
				I:         key.I,
				J:         key.J,
				Color:     protocol.EraseColor,
				OwnerName: p.OwnerName,
				Timestamp: protocol.FormatStamp(stamp),
			})
			continue
		}

		// Last write wins: no ownership check, no stamp comparison.
		b.cells[key] = Cell{Color: p.Color, Owner: p.OwnerName, Stamp: stamp}
		applied = append(applied, protocol.CellRecord{
			I:         key.I,
			J:         key.J,
			Color:     p.Color,
			OwnerName: p.OwnerName,
			Timestamp: protocol.FormatStamp(stamp),
		})
	}
	b.cellCount.Store(int64(len(b.cells)))
	return applied
}

// validPixel drops entries silently; siblings in the batch still apply.
func validPixel(p protocol.Pixel) bool {
	if math.IsNaN(p.I) || math.IsInf(p.I, 0) || math.Abs(p.I) > maxIndex {
		return false
	}
	if math.IsNaN(p.J) || math.IsInf(p.J, 0) || math.Abs(p.J) > maxIndex {
		return false
	}
	return p.OwnerName != ""
}

func (b *Board) afterApply(applied []protocol.CellRecord) {
	if b.persistSink != nil {
		select {
		case b.persistSink <- b.snapshotRecords():
		default:
			// Drop if the saver is backed up. The next applied batch
			// resends the full state and shutdown saves synchronously.
		}
	}
	if b.journal != nil {
		if err := b.journal.Append(b.now().UTC(), applied); err != nil {
			b.log.Printf("journal append: %v", err)
		}
	}
	if b.index != nil {
		b.index.RecordBatch(applied)
	}
}
