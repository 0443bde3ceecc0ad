package boardfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"geocanvas.io/internal/geo"
	"geocanvas.io/internal/protocol"
)

func TestLoad_MissingFileIsEmptyBoard(t *testing.T) {
	recs, err := Load(filepath.Join(t.TempDir(), "absent.json"), 25, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected empty board, got %d records", len(recs))
	}
}

func TestLoad_ConvertsLegacyEntries(t *testing.T) {
	const grid = 25.0
	// Center of cell (10,-3), expressed as lat/lon the old exporter used.
	lon, lat := geo.Unproject((10+0.5)*grid, (-3+0.5)*grid)

	path := filepath.Join(t.TempDir(), "board.json")
	data := `[
	  {"lat":` + fmtFloat(lat) + `,"lon":` + fmtFloat(lon) + `,"color":"#ff0000","ownerName":"alice"},
	  {"i":1,"j":2,"color":"#00ff00","ownerName":"bob","timestamp":"2026-02-10T08:00:00Z"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	recs, err := Load(path, grid, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].I != 10 || recs[0].J != -3 {
		t.Fatalf("legacy entry converted to (%d,%d), want (10,-3)", recs[0].I, recs[0].J)
	}
	if recs[0].Timestamp == "" {
		t.Fatalf("converted entry should get a load stamp")
	}
	if recs[1].I != 1 || recs[1].Timestamp != "2026-02-10T08:00:00Z" {
		t.Fatalf("modern entry mangled: %+v", recs[1])
	}
}

func TestLoad_SkipsBadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.json")
	data := `[
	  {"color":"#fff","ownerName":"noshape"},
	  {"i":1,"j":1,"color":"#fff","ownerName":""},
	  {"i":2,"j":2,"color":"erase","ownerName":"x"},
	  "not an object",
	  {"i":3.9,"j":-0.5,"color":"#abc","ownerName":"ok"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	recs, err := Load(path, 25, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 surviving record, got %d", len(recs))
	}
	if recs[0].I != 3 || recs[0].J != -1 {
		t.Fatalf("fractional file indices should floor, got (%d,%d)", recs[0].I, recs[0].J)
	}
}

func TestLoad_CorruptArrayIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.json")
	if err := os.WriteFile(path, []byte(`{"not":"an array"`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path, 25, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "board.json")
	in := []protocol.CellRecord{
		{I: -3, J: 0, Color: "#bbb", OwnerName: "bob", Timestamp: "2026-02-10T09:00:00Z"},
		{I: 1, J: 2, Color: "#aaa", OwnerName: "alice", Timestamp: "2026-02-10T08:00:00Z"},
	}
	if err := Save(path, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := Load(path, 25, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	for n := range in {
		if out[n] != in[n] {
			t.Fatalf("record %d mangled: %+v != %+v", n, out[n], in[n])
		}
	}
}

func TestSave_EmptyStateWritesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.json")
	if err := Save(path, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "[]\n" {
		t.Fatalf("expected empty array, got %q", buf)
	}
}

func TestSaver_WritesLatestState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.json")
	s := NewSaver(path, nil)
	s.Sink() <- []protocol.CellRecord{{I: 1, J: 1, Color: "#111", OwnerName: "a", Timestamp: "2026-02-10T08:00:00Z"}}
	s.Close()

	recs, err := Load(path, 25, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(recs) != 1 || recs[0].I != 1 {
		t.Fatalf("expected the flushed state, got %+v", recs)
	}
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
