// Package boardfile loads and stores the full board state as a JSON
// array of cell records.
package boardfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"geocanvas.io/internal/geo"
	"geocanvas.io/internal/protocol"
)

// fileEntry probes both shapes an element may take: the current record
// form and the legacy {lat,lon,color,ownerName} form.
type fileEntry struct {
	I         *float64 `json:"i"`
	J         *float64 `json:"j"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Color     string   `json:"color"`
	OwnerName string   `json:"ownerName"`
	Timestamp string   `json:"timestamp"`
}

// Load reads the board file. A missing file is an empty board. Legacy
// elements are converted to cell indices with the configured grid;
// elements that fit neither shape are skipped, not fatal.
func Load(path string, gridMeters float64, logger *log.Logger) ([]protocol.CellRecord, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read board file: %w", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("parse board file: %w", err)
	}

	loadStamp := protocol.FormatStamp(time.Now())
	out := make([]protocol.CellRecord, 0, len(raw))
	for n, item := range raw {
		var e fileEntry
		if err := json.Unmarshal(item, &e); err != nil {
			logger.Printf("board file entry %d skipped: %v", n, err)
			continue
		}
		rec, ok := entryRecord(e, gridMeters, loadStamp)
		if !ok {
			logger.Printf("board file entry %d skipped: unrecognized shape", n)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func entryRecord(e fileEntry, gridMeters float64, loadStamp string) (protocol.CellRecord, bool) {
	if e.OwnerName == "" || e.Color == protocol.EraseColor {
		return protocol.CellRecord{}, false
	}
	rec := protocol.CellRecord{Color: e.Color, OwnerName: e.OwnerName, Timestamp: e.Timestamp}
	if rec.Timestamp == "" {
		rec.Timestamp = loadStamp
	}
	switch {
	case e.I != nil && e.J != nil:
		rec.I = geo.NormalizeIndex(*e.I)
		rec.J = geo.NormalizeIndex(*e.J)
	case e.Lat != nil && e.Lon != nil:
		key := geo.CellOf(*e.Lon, *e.Lat, gridMeters)
		rec.I, rec.J = key.I, key.J
	default:
		return protocol.CellRecord{}, false
	}
	return rec, true
}

// Save truncate-writes the full state. Each write is a complete dump,
// so no partial-write recovery is needed.
func Save(path string, records []protocol.CellRecord) error {
	if records == nil {
		records = []protocol.CellRecord{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir board dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create board file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(records); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode board file: %w", err)
	}
	return f.Close()
}
