package canvas

import "context"

// Run processes one message at a time to completion. Paint batches
// never interleave; broadcast happens before the next message is read.
func (b *Board) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stop:
			return nil
		case req := <-b.join:
			b.handleJoin(req)
		case id := <-b.leave:
			b.handleLeave(id)
		case env := <-b.inbox:
			b.handlePaint(env)
		}
	}
}

func (b *Board) Stop() { close(b.stop) }

// step drains one batch of work in deterministic order. Tests drive it
// directly instead of running the loop goroutine.
func (b *Board) step(joins []JoinRequest, leaves []uint64, paints []PaintEnvelope) {
	for _, req := range joins {
		b.handleJoin(req)
	}
	for _, id := range leaves {
		b.handleLeave(id)
	}
	for _, env := range paints {
		b.handlePaint(env)
	}
}
