package boardfile

import (
	"io"
	"log"

	"geocanvas.io/internal/protocol"
)

// Saver writes board states off the message loop. The sink holds one
// pending state; the writer coalesces to the newest before touching
// disk, so a slow disk costs skipped intermediates, never a stall.
type Saver struct {
	path string
	log  *log.Logger
	ch   chan []protocol.CellRecord
	done chan struct{}
}

func NewSaver(path string, logger *log.Logger) *Saver {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Saver{
		path: path,
		log:  logger,
		ch:   make(chan []protocol.CellRecord, 1),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Saver) Sink() chan<- []protocol.CellRecord { return s.ch }

func (s *Saver) run() {
	defer close(s.done)
	for recs := range s.ch {
		// Coalesce to the newest pending state.
	drain:
		for {
			select {
			case next, ok := <-s.ch:
				if !ok {
					break drain
				}
				recs = next
			default:
				break drain
			}
		}
		if err := Save(s.path, recs); err != nil {
			// Non-fatal: the next applied batch resends the full state.
			s.log.Printf("save board: %v", err)
		}
	}
}

// Close flushes the pending state and waits for the writer to finish.
// No sends may race it; stop the board first.
func (s *Saver) Close() {
	close(s.ch)
	<-s.done
}
