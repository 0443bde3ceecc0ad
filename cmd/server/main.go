package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"geocanvas.io/internal/canvas"
	"geocanvas.io/internal/persistence/boardfile"
	"geocanvas.io/internal/persistence/indexdb"
	"geocanvas.io/internal/persistence/journal"
	"geocanvas.io/internal/protocol"
	"geocanvas.io/internal/settings"
	"geocanvas.io/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides settings)")
		configPath = flag.String("config", "./configs/settings.yaml", "settings file path")
		snapPath   = flag.String("snapshot", "", "board file path (overrides settings)")
		gridMeters = flag.Float64("grid", 0, "grid cell size in meters (overrides settings)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := settings.Load(strings.TrimSpace(*configPath))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load settings: %v", err)
		}
		logger.Printf("settings not found (%s); using defaults", *configPath)
		cfg = settings.Defaults()
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.Addr = strings.TrimSpace(*addr)
	}
	if strings.TrimSpace(*snapPath) != "" {
		cfg.SnapshotPath = strings.TrimSpace(*snapPath)
	}
	if *gridMeters > 0 {
		cfg.GridMeters = *gridMeters
	}

	storeLog := log.New(os.Stdout, "[store] ", log.LstdFlags|log.Lmicroseconds)
	seed, err := boardfile.Load(cfg.SnapshotPath, cfg.GridMeters, storeLog)
	if err != nil {
		logger.Fatalf("load board: %v", err)
	}

	board := canvas.New(canvas.BoardConfig{
		GridMeters: cfg.GridMeters,
		OutBuffer:  cfg.OutBuffer,
	}, seed, log.New(os.Stdout, "[board] ", log.LstdFlags|log.Lmicroseconds))
	logger.Printf("board loaded: cells=%d grid=%.0fm file=%s", board.CellCount(), cfg.GridMeters, cfg.SnapshotPath)

	saver := boardfile.NewSaver(cfg.SnapshotPath, storeLog)
	board.SetPersistSink(saver.Sink())

	// Optional: applied-batch journal.
	var jw *journal.Writer
	if cfg.JournalDir != "" {
		jw = journal.New(cfg.JournalDir)
		board.SetJournal(jw)
	}

	// Optional: read-model placement index (does not affect board state).
	var idx *indexdb.SQLiteIndex
	if cfg.IndexPath != "" {
		idx, err = indexdb.OpenSQLite(cfg.IndexPath)
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		board.SetIndex(idx)
	}

	ctx, cancel := signalContext()
	defer cancel()

	boardDone := make(chan struct{})
	go func() {
		defer close(boardDone)
		if err := board.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("board stopped: %v", err)
		}
	}()

	wsSrv := ws.NewServer(board, ws.Config{
		OutBuffer:   cfg.OutBuffer,
		ReadLimit:   cfg.ReadLimitBytes,
		IdleTimeout: cfg.IdleTimeout(),
	}, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	if cfg.StrictInbound {
		v, err := protocol.NewValidator()
		if err != nil {
			logger.Fatalf("compile schemas: %v", err)
		}
		wsSrv.SetValidator(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsSrv.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			Status string `json:"status"`
			Cells  int64  `json:"cells"`
		}{Status: "ok", Cells: board.CellCount()}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/statz", func(rw http.ResponseWriter, r *http.Request) {
		if idx == nil {
			http.Error(rw, "index disabled", http.StatusNotFound)
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel2()
		cells, err := idx.CellCount(ctx2)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		owners, err := idx.TopOwners(ctx2, 10)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			Cells  int64                `json:"cells"`
			Owners []indexdb.OwnerCount `json:"owners"`
			Board  canvas.BoardStats    `json:"board"`
			Queue  indexdb.IndexStats   `json:"queue"`
		}{Cells: cells, Owners: owners, Board: board.Stats(), Queue: idx.Stats()}
		_ = json.NewEncoder(rw).Encode(resp)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Drain in order: stop the board first so nothing produces writes, then
	// flush the sinks behind it.
	<-boardDone
	saver.Close()
	if err := boardfile.Save(cfg.SnapshotPath, board.FinalRecords()); err != nil {
		logger.Printf("final save: %v", err)
	}
	if jw != nil {
		_ = jw.Close()
	}
	if idx != nil {
		_ = idx.Close()
	}
	logger.Printf("shutdown complete: cells=%d", board.CellCount())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
