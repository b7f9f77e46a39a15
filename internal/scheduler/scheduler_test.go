package scheduler

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/conorfennell/knolcards/internal/delay"
)

func newTestScheduler(t *testing.T, maxDelay string) *Scheduler {
	t.Helper()
	p := DefaultParams()
	p.MaxDelay = maxDelay
	s, err := New(p, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("New returned an unexpected error: %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }

func TestInitial(t *testing.T) {
	now := time.UnixMilli(0)
	sch := Initial(7, now)
	if sch.Delay != "1s" || sch.OrigDelay != "1s" {
		t.Errorf("Expected delay '1s', but got orig=%q delay=%q", sch.OrigDelay, sch.Delay)
	}
	if sch.NextAccessInMillis != 1000 || sch.NextAccessAt.UnixMilli() != 1000 {
		t.Errorf("Expected next access at 1000, but got %d (in %d)", sch.NextAccessAt.UnixMilli(), sch.NextAccessInMillis)
	}
	if sch.RandomFactor != 1.0 {
		t.Errorf("Expected random factor 1.0, but got %f", sch.RandomFactor)
	}
}

func TestNext(t *testing.T) {
	s := newTestScheduler(t, "30d")
	start := Initial(1, time.UnixMilli(0))
	now := time.UnixMilli(60000)

	t.Run("new delay is jittered", func(t *testing.T) {
		next, changed, err := s.Next(start, strPtr("1d"), true, now)
		if err != nil {
			t.Fatalf("Next returned an unexpected error: %v", err)
		}
		if !changed {
			t.Fatal("Expected the schedule to change")
		}
		if next.Delay != "1d" || next.OrigDelay != "1d" {
			t.Errorf("Expected delay '1d', but got orig=%q delay=%q", next.OrigDelay, next.Delay)
		}
		lo, hi := 0.85*float64(delay.Day), 1.15*float64(delay.Day)
		if float64(next.NextAccessInMillis) < lo || float64(next.NextAccessInMillis) >= hi {
			t.Errorf("Expected next access in [%.0f, %.0f), but got %d", lo, hi, next.NextAccessInMillis)
		}
		if want := int64(math.Round(float64(delay.Day) * next.RandomFactor)); want != next.NextAccessInMillis {
			t.Errorf("Expected %d ms for factor %f, but got %d", want, next.RandomFactor, next.NextAccessInMillis)
		}
		if next.NextAccessAt.UnixMilli() != now.UnixMilli()+next.NextAccessInMillis {
			t.Errorf("Expected next access at updatedAt + in, but got %d", next.NextAccessAt.UnixMilli())
		}
	})

	t.Run("same delay without recalc is untouched", func(t *testing.T) {
		next, changed, err := s.Next(start, strPtr(" 1s "), false, now)
		if err != nil {
			t.Fatalf("Next returned an unexpected error: %v", err)
		}
		if changed || next != start {
			t.Errorf("Expected the schedule to be untouched, but got %+v", next)
		}
	})

	t.Run("nil delay with recalc redraws jitter", func(t *testing.T) {
		next, changed, err := s.Next(start, nil, true, now)
		if err != nil {
			t.Fatalf("Next returned an unexpected error: %v", err)
		}
		if !changed || next.Delay != "1s" {
			t.Errorf("Expected recalculated '1s' schedule, but got %+v", next)
		}
	})

	t.Run("coefficient resolves against persisted delay", func(t *testing.T) {
		cur := start
		cur.Delay = "4d"
		next, _, err := s.Next(cur, strPtr("x2.5"), false, now)
		if err != nil {
			t.Fatalf("Next returned an unexpected error: %v", err)
		}
		if next.Delay != "10d" || next.OrigDelay != "x2.5" {
			t.Errorf("Expected delay '10d' from 'x2.5', but got orig=%q delay=%q", next.OrigDelay, next.Delay)
		}
	})

	t.Run("clamped to max delay", func(t *testing.T) {
		next, _, err := s.Next(start, strPtr("60d"), true, now)
		if err != nil {
			t.Fatalf("Next returned an unexpected error: %v", err)
		}
		if next.Delay != "30d" {
			t.Errorf("Expected delay capped to '30d', but got %q", next.Delay)
		}
		if next.OrigDelay != "60d" {
			t.Errorf("Expected orig delay '60d', but got %q", next.OrigDelay)
		}
		lo, hi := 0.90*float64(30*delay.Day), 1.00*float64(30*delay.Day)
		if float64(next.NextAccessInMillis) < lo || float64(next.NextAccessInMillis) >= hi {
			t.Errorf("Expected next access in [%.0f, %.0f), but got %d", lo, hi, next.NextAccessInMillis)
		}
		if next.RandomFactor < 0.90 || next.RandomFactor >= 1.00 {
			t.Errorf("Expected the tighter factor to be persisted, but got %f", next.RandomFactor)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if _, _, err := s.Next(start, strPtr("  "), true, now); !errors.Is(err, ErrEmptyDelay) {
			t.Errorf("Expected ErrEmptyDelay, but got %v", err)
		}
		if _, _, err := s.Next(start, strPtr("1y"), true, now); !errors.Is(err, delay.ErrInvalidDelayFormat) {
			t.Errorf("Expected ErrInvalidDelayFormat, but got %v", err)
		}
	})
}

func TestNextClampsHugeDelays(t *testing.T) {
	s := newTestScheduler(t, "30d")
	now := time.UnixMilli(60_000)
	start := Initial(1, time.UnixMilli(0))
	start.Delay = "1d"
	maxMillis := float64(30 * delay.Day)

	testCases := []struct {
		name      string
		requested string
	}{
		{"duration near int64 range", "3500000000M"},
		{"largest duration", "9223372036854775s"},
		{"huge coefficient", "x100000000000000000000"},
		{"coefficient far beyond the cap", "x9999999999.5"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				next, _, err := s.Next(start, strPtr(tc.requested), true, now)
				if err != nil {
					t.Fatalf("Next returned an unexpected error: %v", err)
				}
				if next.Delay != "30d" {
					t.Fatalf("Expected delay capped to '30d', but got %q", next.Delay)
				}
				in := float64(next.NextAccessInMillis)
				if in < 0.90*maxMillis || in >= maxMillis {
					t.Fatalf("Expected next access in [0.9, 1.0) of the cap, but got %d", next.NextAccessInMillis)
				}
				if got := next.NextAccessAt.UnixMilli(); got != now.UnixMilli()+next.NextAccessInMillis {
					t.Fatalf("Expected next access at %d, but got %d", now.UnixMilli()+next.NextAccessInMillis, got)
				}
			}
		})
	}
}

func TestNextIsUniform(t *testing.T) {
	s := newTestScheduler(t, "1M")
	start := Initial(1, time.UnixMilli(0))
	base := float64(delay.Day)

	const buckets = 10
	const iterations = 20000
	counts := make([]int, buckets)
	for i := 0; i < iterations; i++ {
		next, _, err := s.Next(start, strPtr("1d"), true, time.UnixMilli(0))
		if err != nil {
			t.Fatalf("Next returned an unexpected error: %v", err)
		}
		f := float64(next.NextAccessInMillis) / base
		b := int((f - 0.85) / 0.30 * buckets)
		if b < 0 || b >= buckets {
			t.Fatalf("factor %f outside [0.85, 1.15)", f)
		}
		counts[b]++
	}

	expected := float64(iterations) / buckets
	for b, n := range counts {
		if math.Abs(float64(n)-expected) > 0.2*expected {
			t.Errorf("bucket %d: expected about %.0f, but got %d", b, expected, n)
		}
	}
}

func TestNewRejectsBadMaxDelay(t *testing.T) {
	p := DefaultParams()
	p.MaxDelay = "x2"
	if _, err := New(p, nil); err == nil {
		t.Error("Expected an error for a coefficient max delay")
	}

	p.MaxDelay = "1201M"
	if _, err := New(p, nil); !errors.Is(err, ErrMaxDelayTooLong) {
		t.Errorf("Expected ErrMaxDelayTooLong, but got %v", err)
	}

	p.MaxDelay = "1200M"
	if _, err := New(p, nil); err != nil {
		t.Errorf("Expected the limit itself to be accepted, but got %v", err)
	}
}
