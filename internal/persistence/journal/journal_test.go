package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"geocanvas.io/internal/protocol"
)

func TestAppendAndReadBack(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	at := time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC)
	batch1 := []protocol.CellRecord{{I: 1, J: 2, Color: "#f00", OwnerName: "alice", Timestamp: protocol.FormatStamp(at)}}
	batch2 := []protocol.CellRecord{{I: 3, J: 4, Color: protocol.EraseColor, OwnerName: "bob", Timestamp: protocol.FormatStamp(at)}}

	if err := w.Append(at, batch1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(at.Add(time.Second), batch2); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "paint-*.jsonl.zst"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected one journal file, got %v (%v)", files, err)
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	var entries []Entry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Pixels[0].OwnerName != "alice" || entries[1].Pixels[0].Color != protocol.EraseColor {
		t.Fatalf("entries mangled: %+v", entries)
	}
}

func TestAppend_DisablesAfterWriteError(t *testing.T) {
	// Point the journal at a path that cannot be a directory.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	w := New(filepath.Join(blocker, "sub"))
	if err := w.Append(time.Now(), nil); err == nil {
		t.Fatalf("expected first append to fail")
	}
	// Disabled: later appends are silent no-ops.
	if err := w.Append(time.Now(), nil); err != nil {
		t.Fatalf("expected disabled journal to stay quiet, got %v", err)
	}
}
