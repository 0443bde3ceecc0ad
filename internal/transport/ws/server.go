package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"geocanvas.io/internal/canvas"
	"geocanvas.io/internal/protocol"
)

type Config struct {
	OutBuffer   int           // per-client send buffer, frames
	ReadLimit   int64         // max inbound frame size, bytes
	IdleTimeout time.Duration // read deadline between frames
}

func (c *Config) normalize() {
	if c.OutBuffer <= 0 {
		c.OutBuffer = 256
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

type Server struct {
	board *canvas.Board
	cfg   Config
	log   *log.Logger

	// Optional: compiled wire schemas. When set, inbound paint frames
	// that fail validation are dropped like malformed JSON.
	validator *protocol.Validator

	upgrader websocket.Upgrader
}

func NewServer(b *canvas.Board, cfg Config, logger *log.Logger) *Server {
	cfg.normalize()
	return &Server{
		board: b,
		cfg:   cfg,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) SetValidator(v *protocol.Validator) { s.validator = v }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		out := make(chan []byte, s.cfg.OutBuffer)
		respCh := make(chan canvas.JoinResponse, 1)
		s.board.Join() <- canvas.JoinRequest{Name: r.RemoteAddr, Out: out, Resp: respCh}
		resp := <-respCh
		if resp.SessionID == 0 {
			return
		}
		sid := resp.SessionID

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. The board closes out when it drops the
		// session; closing the conn here unblocks the reader too.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case buf, ok := <-out:
					if !ok {
						_ = conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Frames that cannot be used are dropped and the
		// connection stays open: this protocol has no NACK.
		conn.SetReadLimit(s.cfg.ReadLimit)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypePaint {
				continue
			}
			if s.validator != nil {
				if err := s.validator.Validate(protocol.TypePaint, msg); err != nil {
					s.log.Printf("session %d: dropped paint frame: %v", sid, err)
					continue
				}
			}
			pixels, err := protocol.DecodePaint(msg)
			if err != nil || len(pixels) == 0 {
				continue
			}
			s.board.Inbox() <- canvas.PaintEnvelope{SessionID: sid, Pixels: pixels}
		}

		// Cleanup. A session the board already dropped is a no-op here.
		s.board.Leave() <- sid
	}
}
