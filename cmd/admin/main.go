package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"geocanvas.io/internal/geo"
	"geocanvas.io/internal/persistence/boardfile"
	"geocanvas.io/internal/protocol"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "health":
			healthCmd(os.Args[2:])
			return
		case "stats":
			statsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "erase":
			eraseCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin health|stats|db|erase [flags]")
	os.Exit(2)
}

func eraseCmd(args []string) {
	fs := flag.NewFlagSet("erase", flag.ExitOnError)
	boardPath := fs.String("board", "data/board.json", "board file")
	bbox := fs.String("bbox", "", "area to erase: lon1,lat1:lon2,lat2 (required)")
	owner := fs.String("owner", "", "only erase cells owned by this name (optional)")
	outPath := fs.String("out", "", "output path (default: in place)")
	gridMeters := fs.Float64("grid", 25, "grid cell size in meters")
	_ = fs.Parse(args)

	if strings.TrimSpace(*bbox) == "" {
		fmt.Fprintln(os.Stderr, "missing -bbox")
		os.Exit(2)
	}
	minLon, minLat, maxLon, maxLat, err := parseBBox(*bbox)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -bbox:", err)
		os.Exit(2)
	}

	records, err := boardfile.Load(*boardPath, *gridMeters, log.New(os.Stderr, "[admin] ", 0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load board:", err)
		os.Exit(1)
	}

	kept := make([]protocol.CellRecord, 0, len(records))
	removed := 0
	for _, rec := range records {
		lon, lat := cellCenter(rec, *gridMeters)
		inside := lon >= minLon && lon <= maxLon && lat >= minLat && lat <= maxLat
		if inside && (*owner == "" || rec.OwnerName == *owner) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}

	if strings.TrimSpace(*outPath) == "" {
		*outPath = *boardPath
	}
	if err := boardfile.Save(*outPath, kept); err != nil {
		fmt.Fprintln(os.Stderr, "save board:", err)
		os.Exit(1)
	}
	fmt.Printf("erase ok: bbox=%s kept=%d removed=%d out=%s\n", *bbox, len(kept), removed, *outPath)
}

// A cell is inside the box iff its center is.
func cellCenter(rec protocol.CellRecord, gridMeters float64) (lon, lat float64) {
	return geo.Unproject((float64(rec.I)+0.5)*gridMeters, (float64(rec.J)+0.5)*gridMeters)
}

func parseBBox(s string) (minLon, minLat, maxLon, maxLat float64, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, 0, 0, fmt.Errorf("expected lon1,lat1:lon2,lat2")
	}
	aLon, aLat, err := parseLonLat(parts[0])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	bLon, bLat, err := parseLonLat(parts[1])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if aLon <= bLon {
		minLon, maxLon = aLon, bLon
	} else {
		minLon, maxLon = bLon, aLon
	}
	if aLat <= bLat {
		minLat, maxLat = aLat, bLat
	} else {
		minLat, maxLat = bLat, aLat
	}
	return minLon, minLat, maxLon, maxLat, nil
}

func parseLonLat(s string) (lon, lat float64, err error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected lon,lat")
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return lon, lat, nil
}
