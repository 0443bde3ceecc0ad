// Package journal appends every applied batch to hourly rotated,
// zstd-compressed JSONL files.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"geocanvas.io/internal/protocol"
)

// Entry is one journal line: the applied batch and when it landed.
type Entry struct {
	At     string                `json:"at"`
	Pixels []protocol.CellRecord `json:"pixels"`
}

type Writer struct {
	mu   sync.Mutex
	roll *rollingWriter
	dead bool
}

func New(dir string) *Writer {
	return &Writer{roll: &rollingWriter{dir: dir, prefix: "paint"}}
}

// Append journals one applied batch. The first write error disables the
// journal for the rest of the process; the board state never depends on
// it.
func (w *Writer) Append(at time.Time, pixels []protocol.CellRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dead {
		return nil
	}
	if err := w.roll.write(Entry{At: protocol.FormatStamp(at), Pixels: pixels}); err != nil {
		w.dead = true
		return fmt.Errorf("journal write: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.roll.close()
}

// rollingWriter keeps one zstd stream per UTC hour.
type rollingWriter struct {
	dir    string
	prefix string

	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func (r *rollingWriter) write(v any) error {
	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != r.curHour {
		if err := r.rotate(hour); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := r.w.Write(b); err != nil {
		return err
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return err
	}
	return r.w.Flush()
}

func (r *rollingWriter) rotate(hour string) error {
	if err := r.close(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	r.f = f
	r.enc = enc
	r.w = bufio.NewWriterSize(enc, 128*1024)
	r.curHour = hour
	return nil
}

func (r *rollingWriter) close() error {
	var err1 error
	if r.w != nil {
		_ = r.w.Flush()
	}
	if r.enc != nil {
		err1 = r.enc.Close()
		r.enc = nil
	}
	if r.f != nil {
		_ = r.f.Close()
		r.f = nil
	}
	r.w = nil
	return err1
}

func (r *rollingWriter) pathForHour(hour string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s-%s.jsonl.zst", r.prefix, hour))
}
