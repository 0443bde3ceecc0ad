package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"geocanvas.io/internal/geo"
	"geocanvas.io/internal/persistence/boardfile"
	"geocanvas.io/internal/persistence/journal"
	"geocanvas.io/internal/protocol"
)

func main() {
	var (
		journalDir = flag.String("journal", "", "journal dir containing paint-*.jsonl.zst")
		boardPath  = flag.String("board", "", "board file to seed from (optional)")
		outPath    = flag.String("out", "", "board file to write (optional; summary only when empty)")
		gridMeters = flag.Float64("grid", 25, "grid cell size in meters (for legacy board entries)")
	)
	flag.Parse()

	if *journalDir == "" {
		fmt.Fprintln(os.Stderr, "missing -journal")
		os.Exit(2)
	}

	cells := map[geo.CellKey]protocol.CellRecord{}

	if *boardPath != "" {
		seed, err := boardfile.Load(*boardPath, *gridMeters, log.New(os.Stderr, "[replay] ", 0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "load board:", err)
			os.Exit(1)
		}
		for _, rec := range seed {
			cells[geo.CellKey{I: rec.I, J: rec.J}] = rec
		}
	}

	files, err := listJournalFiles(*journalDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *journalDir)
		os.Exit(1)
	}

	var batches, entries int
	for _, path := range files {
		n, m, err := replayFile(cells, path)
		batches += n
		entries += m
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: files=%d batches=%d entries=%d cells=%d\n", len(files), batches, entries, len(cells))

	if *outPath == "" {
		return
	}
	records := make([]protocol.CellRecord, 0, len(cells))
	for _, rec := range cells {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].I != records[j].I {
			return records[i].I < records[j].I
		}
		return records[i].J < records[j].J
	})
	if err := boardfile.Save(*outPath, records); err != nil {
		fmt.Fprintln(os.Stderr, "write board:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *outPath)
}

func listJournalFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "paint-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	// Hour-stamped names sort chronologically.
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func replayFile(cells map[geo.CellKey]protocol.CellRecord, path string) (batches, entries int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return 0, 0, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		var entry journal.Entry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return batches, entries, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		batches++
		for _, rec := range entry.Pixels {
			key := geo.CellKey{I: rec.I, J: rec.J}
			if rec.Color == protocol.EraseColor {
				delete(cells, key)
			} else {
				cells[key] = rec
			}
			entries++
		}
	}
	if err := sc.Err(); err != nil {
		return batches, entries, err
	}
	return batches, entries, nil
}
