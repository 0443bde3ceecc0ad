package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "data/index.db", "sqlite index path")
	limit := fs.Int("limit", 20, "result limit")
	i := fs.Int64("i", 0, "cell i (for 'at')")
	j := fs.Int64("j", 0, "cell j (for 'at')")
	_ = fs.Parse(args)

	q := "cells"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "cells":
		var n int64
		if err := db.QueryRow(`SELECT COUNT(*) FROM placements`).Scan(&n); err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		printJSON(struct {
			Cells int64 `json:"cells"`
		}{Cells: n})

	case "owners":
		if *limit <= 0 {
			*limit = 20
		}
		rows, err := db.Query(`SELECT owner, COUNT(*) AS cells FROM placements GROUP BY owner ORDER BY cells DESC, owner ASC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Owner string `json:"owner"`
				Cells int64  `json:"cells"`
			}
			if err := rows.Scan(&r.Owner, &r.Cells); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "at":
		var r struct {
			I        int64  `json:"i"`
			J        int64  `json:"j"`
			Color    string `json:"color"`
			Owner    string `json:"owner"`
			PlacedAt string `json:"placed_at"`
		}
		row := db.QueryRow(`SELECT i,j,color,owner,placed_at FROM placements WHERE i=? AND j=?`, *i, *j)
		if err := row.Scan(&r.I, &r.J, &r.Color, &r.Owner, &r.PlacedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				fmt.Fprintf(os.Stderr, "no placement at (%d,%d)\n", *i, *j)
				os.Exit(2)
			}
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		printJSON(r)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-db PATH] [-limit N] [-i I -j J] cells|owners|at")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
