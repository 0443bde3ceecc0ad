// Package budget meters placements on the client side: a bounded pool
// that drains one unit per staged cell and refills on a timer.
package budget

import (
	"context"
	"sync"
	"time"
)

// Store is the durable side-channel keeping the pool across restarts.
type Store interface {
	LoadRemaining() (int, bool)
	SaveRemaining(int)
}

type Config struct {
	Max         int
	RefillEvery time.Duration
	Poll        time.Duration // refill poll interval, coarse on purpose
	Unlimited   bool
}

func (c *Config) normalize() {
	if c.Max <= 0 {
		c.Max = 250
	}
	if c.RefillEvery <= 0 {
		c.RefillEvery = 4 * time.Second
	}
	if c.Poll <= 0 {
		c.Poll = time.Second
	}
}

type Scheduler struct {
	mu  sync.Mutex
	cfg Config

	remaining    int
	nextRefillAt time.Time // zero while the pool is full

	store Store
	clock func() time.Time
}

// New restores the pool from the store when present, else starts full.
// clock may be nil outside tests.
func New(cfg Config, store Store, clock func() time.Time) *Scheduler {
	cfg.normalize()
	if clock == nil {
		clock = time.Now
	}
	s := &Scheduler{cfg: cfg, store: store, clock: clock, remaining: cfg.Max}
	if store != nil {
		if v, ok := store.LoadRemaining(); ok {
			if v < 0 {
				v = 0
			}
			if v > cfg.Max {
				v = cfg.Max
			}
			s.remaining = v
		}
	}
	if s.remaining < cfg.Max && !cfg.Unlimited {
		s.nextRefillAt = clock().Add(cfg.RefillEvery)
	}
	return s
}

// TrySpend admits one placement. Spending below Max arms the refill
// deadline if the pool was full.
func (s *Scheduler) TrySpend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Unlimited {
		return true
	}
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	if s.nextRefillAt.IsZero() {
		s.nextRefillAt = s.clock().Add(s.cfg.RefillEvery)
	}
	s.save()
	return true
}

// Refund returns one unit, capped at Max. Erasing a queued entry always
// succeeds regardless of exhaustion.
func (s *Scheduler) Refund() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Unlimited {
		return
	}
	if s.remaining < s.cfg.Max {
		s.remaining++
	}
	if s.remaining >= s.cfg.Max {
		s.nextRefillAt = time.Time{}
	}
	s.save()
}

// Tick grants every whole refill interval elapsed past the deadline, not
// one per observation, so a suspended process catches up in one call.
// Returns the number of units granted.
func (s *Scheduler) Tick(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Unlimited || s.remaining >= s.cfg.Max || s.nextRefillAt.IsZero() {
		return 0
	}
	if now.Before(s.nextRefillAt) {
		return 0
	}
	intervals := 1 + int(now.Sub(s.nextRefillAt)/s.cfg.RefillEvery)
	granted := intervals
	if s.remaining+granted > s.cfg.Max {
		granted = s.cfg.Max - s.remaining
	}
	s.remaining += granted
	if s.remaining >= s.cfg.Max {
		// Pool full: the timer parks until the next spend re-arms it.
		s.nextRefillAt = time.Time{}
	} else {
		s.nextRefillAt = s.nextRefillAt.Add(time.Duration(intervals) * s.cfg.RefillEvery)
	}
	s.save()
	return granted
}

// Run polls Tick until the context ends.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Remaining reports the pool and whether it is unlimited.
func (s *Scheduler) Remaining() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining, s.cfg.Unlimited
}

// NextRefill reports the pending deadline, zero while the pool is full.
func (s *Scheduler) NextRefill() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRefillAt
}

func (s *Scheduler) save() {
	if s.store != nil {
		s.store.SaveRemaining(s.remaining)
	}
}
