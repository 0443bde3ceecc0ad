package budget

import (
	"testing"
	"time"
)

type memStore struct {
	v     int
	ok    bool
	saves int
}

func (m *memStore) LoadRemaining() (int, bool) { return m.v, m.ok }
func (m *memStore) SaveRemaining(v int)        { m.v = v; m.ok = true; m.saves++ }

var t0 = time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return t0 }
}

func newScheduler(max int, unlimited bool, store Store) *Scheduler {
	return New(Config{
		Max:         max,
		RefillEvery: 4 * time.Second,
		Poll:        time.Second,
		Unlimited:   unlimited,
	}, store, fixedClock())
}

func spendAll(t *testing.T, s *Scheduler, n int) {
	t.Helper()
	for k := 0; k < n; k++ {
		if !s.TrySpend() {
			t.Fatalf("spend %d refused", k)
		}
	}
	if s.TrySpend() {
		t.Fatalf("expected exhaustion after %d spends", n)
	}
}

func TestCatchUpRefill(t *testing.T) {
	// One late observation grants every whole missed interval.
	s := newScheduler(5, false, nil)
	spendAll(t, s, 5)

	if granted := s.Tick(t0.Add(3 * 4 * time.Second)); granted != 3 {
		t.Fatalf("expected 3 granted, got %d", granted)
	}
	if got, _ := s.Remaining(); got != 3 {
		t.Fatalf("expected remaining 3, got %d", got)
	}

	s2 := newScheduler(5, false, nil)
	spendAll(t, s2, 5)
	if granted := s2.Tick(t0.Add(10 * 4 * time.Second)); granted != 5 {
		t.Fatalf("expected cap at max, got %d", granted)
	}
	if got, _ := s2.Remaining(); got != 5 {
		t.Fatalf("expected full pool, got %d", got)
	}
	if !s2.NextRefill().IsZero() {
		t.Fatalf("expected deadline cleared at max")
	}
}

func TestTickBeforeDeadline(t *testing.T) {
	s := newScheduler(5, false, nil)
	if !s.TrySpend() {
		t.Fatalf("spend refused")
	}
	if granted := s.Tick(t0.Add(time.Second)); granted != 0 {
		t.Fatalf("expected nothing before the deadline, got %d", granted)
	}
	if granted := s.Tick(t0.Add(4 * time.Second)); granted != 1 {
		t.Fatalf("expected 1 at the deadline, got %d", granted)
	}
}

func TestDeadlineAdvancesByGrantedIntervals(t *testing.T) {
	s := newScheduler(5, false, nil)
	spendAll(t, s, 5)

	// Two intervals elapsed mid-third: deadline moves two steps.
	s.Tick(t0.Add(4*time.Second + 4*time.Second + 2*time.Second))
	want := t0.Add(3 * 4 * time.Second)
	if got := s.NextRefill(); !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}

func TestRefundCapsAtMax(t *testing.T) {
	s := newScheduler(3, false, nil)
	s.Refund()
	if got, _ := s.Remaining(); got != 3 {
		t.Fatalf("refund above max must cap, got %d", got)
	}
}

func TestRefundAlwaysSucceedsWhenExhausted(t *testing.T) {
	s := newScheduler(2, false, nil)
	spendAll(t, s, 2)
	s.Refund()
	if got, _ := s.Remaining(); got != 1 {
		t.Fatalf("expected 1 after refund, got %d", got)
	}
	if !s.TrySpend() {
		t.Fatalf("refunded unit should be spendable")
	}
}

func TestUnlimitedBypassesPool(t *testing.T) {
	s := newScheduler(1, true, nil)
	for k := 0; k < 100; k++ {
		if !s.TrySpend() {
			t.Fatalf("unlimited spend refused at %d", k)
		}
	}
	if granted := s.Tick(t0.Add(time.Hour)); granted != 0 {
		t.Fatalf("unlimited pool should not refill, got %d", granted)
	}
	if _, unlimited := s.Remaining(); !unlimited {
		t.Fatalf("expected unlimited flag")
	}
}

func TestLazyRearmAfterFull(t *testing.T) {
	s := newScheduler(2, false, nil)
	spendAll(t, s, 2)
	s.Tick(t0.Add(time.Hour))
	if !s.NextRefill().IsZero() {
		t.Fatalf("expected parked timer at max")
	}
	if !s.TrySpend() {
		t.Fatalf("spend refused at max")
	}
	if got := s.NextRefill(); !got.Equal(t0.Add(4 * time.Second)) {
		t.Fatalf("expected deadline re-armed, got %v", got)
	}
}

func TestStoreRestoreAndClamp(t *testing.T) {
	st := &memStore{v: 2, ok: true}
	s := newScheduler(5, false, st)
	if got, _ := s.Remaining(); got != 2 {
		t.Fatalf("expected restored pool 2, got %d", got)
	}

	st2 := &memStore{v: 99, ok: true}
	s2 := newScheduler(5, false, st2)
	if got, _ := s2.Remaining(); got != 5 {
		t.Fatalf("expected clamp to max, got %d", got)
	}

	st3 := &memStore{}
	s3 := newScheduler(5, false, st3)
	if !s3.TrySpend() {
		t.Fatalf("spend refused")
	}
	if st3.saves == 0 || st3.v != 4 {
		t.Fatalf("expected spend persisted, store=%+v", st3)
	}
}
