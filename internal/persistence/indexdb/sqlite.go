package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"geocanvas.io/internal/protocol"
)

// SQLiteIndex keeps one queryable row per painted cell. It is a secondary
// index over the board file: writes are fire-and-forget from the board
// loop, and only the stats endpoints read it.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan []protocol.CellRecord
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// One slot per paint batch. Batches arrive at human painting
		// rates, so this covers long write stalls before anything drops.
		ch: make(chan []protocol.CellRecord, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for write-heavy workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS placements (
			i INTEGER NOT NULL,
			j INTEGER NOT NULL,
			color TEXT NOT NULL,
			owner TEXT NOT NULL,
			placed_at TEXT NOT NULL,
			PRIMARY KEY (i, j)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_owner ON placements(owner);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordBatch enqueues the applied entries of one paint batch. It never
// blocks the caller.
func (s *SQLiteIndex) RecordBatch(pixels []protocol.CellRecord) {
	if s == nil || s.closed.Load() || len(pixels) == 0 {
		return
	}
	select {
	case s.ch <- pixels:
	default:
		// Drop if the indexer falls behind; the board file remains the
		// source of truth.
		s.dropped.Add(1)
	}
}

// IndexStats reports queue health for the stats endpoint.
type IndexStats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DroppedTotal  uint64 `json:"dropped_total"`
}

func (s *SQLiteIndex) Stats() IndexStats {
	return IndexStats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DroppedTotal:  s.dropped.Load(),
	}
}

// CellCount reports the number of indexed cells.
func (s *SQLiteIndex) CellCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM placements`).Scan(&n)
	return n, err
}

// OwnerCount is one row of the per-owner leaderboard.
type OwnerCount struct {
	Owner string `json:"owner"`
	Cells int64  `json:"cells"`
}

// TopOwners returns the owners holding the most cells, busiest first.
func (s *SQLiteIndex) TopOwners(ctx context.Context, limit int) ([]OwnerCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner, COUNT(*) AS cells FROM placements GROUP BY owner ORDER BY cells DESC, owner ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OwnerCount
	for rows.Next() {
		var oc OwnerCount
		if err := rows.Scan(&oc.Owner, &oc.Cells); err != nil {
			return nil, err
		}
		out = append(out, oc)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	upsert, _ := s.db.Prepare(`INSERT OR REPLACE INTO placements(i,j,color,owner,placed_at) VALUES(?,?,?,?,?)`)
	erase, _ := s.db.Prepare(`DELETE FROM placements WHERE i=? AND j=?`)
	defer func() {
		if upsert != nil {
			_ = upsert.Close()
		}
		if erase != nil {
			_ = erase.Close()
		}
	}()

	var tx *sql.Tx

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
	}

	apply := func(batch []protocol.CellRecord) bool {
		for _, rec := range batch {
			var err error
			if rec.Color == protocol.EraseColor {
				if erase == nil {
					continue
				}
				_, err = tx.Stmt(erase).Exec(rec.I, rec.J)
			} else {
				if upsert == nil {
					continue
				}
				_, err = tx.Stmt(upsert).Exec(rec.I, rec.J, rec.Color, rec.OwnerName, rec.Timestamp)
			}
			if err != nil {
				rollback()
				return false
			}
		}
		return true
	}

	for batch := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		if !apply(batch) {
			continue
		}
		// Fold queued bursts into the same commit, then release the
		// connection so stats reads never wait on an idle tx.
	coalesce:
		for {
			select {
			case more, ok := <-s.ch:
				if !ok {
					break coalesce
				}
				if !apply(more) {
					break coalesce
				}
			default:
				break coalesce
			}
		}
		commit()
	}

	commit()
}
