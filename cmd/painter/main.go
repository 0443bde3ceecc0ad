package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"geocanvas.io/internal/client/budget"
	"geocanvas.io/internal/client/reconcile"
	"geocanvas.io/internal/geo"
	"geocanvas.io/internal/protocol"
)

const reconnectDelay = 3 * time.Second

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8090/ws", "ws url")
		owner     = flag.String("owner", "painter", "display name attached to placements")
		color     = flag.String("color", "#ff4500", "paint color")
		lon       = flag.Float64("lon", -0.1276, "center longitude")
		lat       = flag.Float64("lat", 51.5072, "center latitude")
		span      = flag.Int("span", 16, "half-width of the painted square, in cells")
		rate      = flag.Duration("rate", 500*time.Millisecond, "delay between staged placements")
		batchSize = flag.Int("batch", 4, "queued placements per paint frame")
		budgetMax = flag.Int("budget_max", 250, "placement budget pool size")
		refill    = flag.Duration("refill", 4*time.Second, "budget refill interval")
		unlimited = flag.Bool("unlimited", false, "bypass the placement budget")
		stateDir  = flag.String("state", "./data/painter", "local state directory")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[painter] ", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := signalContext()
	defer cancel()

	store, err := newFileStore(filepath.Join(*stateDir, "budget.json"), logger)
	if err != nil {
		logger.Fatalf("budget store: %v", err)
	}
	sched := budget.New(budget.Config{
		Max:         *budgetMax,
		RefillEvery: *refill,
		Unlimited:   *unlimited,
	}, store, time.Now)
	go sched.Run(ctx)

	// The reconciler survives reconnects; every fresh snapshot resets it.
	rec := reconcile.New(0)

	p := &painter{
		owner:     *owner,
		color:     *color,
		lon:       *lon,
		lat:       *lat,
		span:      *span,
		rate:      *rate,
		batchSize: *batchSize,
		rec:       rec,
		sched:     sched,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       logger,
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.runSession(ctx, *url); err != nil {
			logger.Printf("session: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

type painter struct {
	owner     string
	color     string
	lon, lat  float64
	span      int
	rate      time.Duration
	batchSize int

	rec   *reconcile.Reconciler
	sched *budget.Scheduler
	rng   *rand.Rand
	log   *log.Logger
}

func (p *painter) runSession(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	p.log.Printf("connected to %s", url)

	// Reader goroutine: feeds the reconciler until the connection dies.
	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeSnapshot:
				var snap protocol.SnapshotMsg
				if err := json.Unmarshal(msg, &snap); err != nil {
					continue
				}
				p.rec.ApplySnapshot(snap.GridMeters, snap.Pixels)
				p.log.Printf("snapshot: cells=%d grid=%.0fm", len(snap.Pixels), snap.GridMeters)
			case protocol.TypePixels:
				var px protocol.PixelsMsg
				if err := json.Unmarshal(msg, &px); err != nil {
					continue
				}
				p.rec.ApplyPixels(px.Pixels)
			}
		}
	}()

	ticker := time.NewTicker(p.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		case err := <-readErr:
			return err
		case <-ticker.C:
			if err := p.stage(conn); err != nil {
				return err
			}
		}
	}
}

// stage queues one placement around the center and ships the queue as a
// paint frame once it reaches the batch size.
func (p *painter) stage(conn *websocket.Conn) error {
	grid := p.rec.GridMeters()
	if grid <= 0 {
		// No snapshot yet.
		return nil
	}
	center := geo.CellOf(p.lon, p.lat, grid)

	if !p.sched.TrySpend() {
		left, _ := p.sched.Remaining()
		p.log.Printf("budget exhausted (remaining=%d); waiting for refill", left)
		return nil
	}

	di := int64(p.rng.Intn(2*p.span+1) - p.span)
	dj := int64(p.rng.Intn(2*p.span+1) - p.span)
	px := protocol.Pixel{
		I:         float64(center.I + di),
		J:         float64(center.J + dj),
		Color:     p.color,
		OwnerName: p.owner,
	}
	// Erase a stripe now and then so the board doesn't just fill up.
	if p.rng.Intn(10) == 0 {
		px.Color = protocol.EraseColor
	}
	key := p.rec.Queue(px)

	// Occasionally withdraw a pending cell before it ships.
	if p.rng.Intn(16) == 0 {
		if p.rec.Cancel(key) {
			p.sched.Refund()
		}
	}

	if p.rec.QueuedLen() < p.batchSize {
		return nil
	}
	batch := p.rec.Submit()
	if batch == nil {
		return nil
	}
	msg := protocol.PaintMsg{Type: protocol.TypePaint, Pixels: batch}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send paint: %w", err)
	}
	return nil
}

// fileStore persists the remaining budget across runs.
type fileStore struct {
	path string
	log  *log.Logger
}

type budgetState struct {
	Remaining int `json:"remaining"`
}

func newFileStore(path string, logger *log.Logger) (*fileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{path: path, log: logger}, nil
}

func (s *fileStore) LoadRemaining() (int, bool) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return 0, false
	}
	var st budgetState
	if err := json.Unmarshal(b, &st); err != nil {
		return 0, false
	}
	return st.Remaining, true
}

func (s *fileStore) SaveRemaining(v int) {
	b, _ := json.Marshal(budgetState{Remaining: v})
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		s.log.Printf("save budget: %v", err)
	}
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
