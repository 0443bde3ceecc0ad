package protocol

import "encoding/json"

// Message types.
const (
	TypeSnapshot = "snapshot"
	TypePaint    = "paint"
	TypePixels   = "pixels"
)

// EraseColor is the sentinel color. A paint entry carrying it deletes
// the cell instead of painting it, and the server echoes it in pixels
// broadcasts so clients remove the cell too.
const EraseColor = "erase"

// snapshot (server -> client), the first frame of every connection and
// the only full-state transfer.
type SnapshotMsg struct {
	Type       string       `json:"type"`
	GridMeters float64      `json:"gridMeters"`
	Pixels     []CellRecord `json:"pixels"`
}

// paint (client -> server), a batch of candidate placements.
type PaintMsg struct {
	Type   string  `json:"type"`
	Pixels []Pixel `json:"pixels"`
}

// pixels (server -> all clients), the changes actually applied by one
// paint batch, sender included.
type PixelsMsg struct {
	Type   string       `json:"type"`
	Pixels []CellRecord `json:"pixels"`
}

// Pixel is an unvalidated candidate. I and J may arrive fractional;
// the server snaps or drops them.
type Pixel struct {
	I         float64 `json:"i"`
	J         float64 `json:"j"`
	Color     string  `json:"color"`
	OwnerName string  `json:"ownerName"`
}

// CellRecord is a confirmed cell, on the wire and in the snapshot file.
type CellRecord struct {
	I         int64  `json:"i"`
	J         int64  `json:"j"`
	Color     string `json:"color"`
	OwnerName string `json:"ownerName"`
	Timestamp string `json:"timestamp"`
}

// DecodePaint decodes a paint frame entry by entry, so one malformed
// entry drops alone instead of poisoning its batch.
func DecodePaint(b []byte) ([]Pixel, error) {
	var frame struct {
		Type   string            `json:"type"`
		Pixels []json.RawMessage `json:"pixels"`
	}
	if err := json.Unmarshal(b, &frame); err != nil {
		return nil, err
	}
	out := make([]Pixel, 0, len(frame.Pixels))
	for _, raw := range frame.Pixels {
		var p Pixel
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
