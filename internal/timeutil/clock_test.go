package timeutil

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
	if d := clock.Since(time.Now().Add(-time.Second)); d < time.Second {
		t.Errorf("Since() = %v, expected >= 1s", d)
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	clock.Advance(1500 * time.Millisecond)
	if got := clock.Since(start); got != 1500*time.Millisecond {
		t.Errorf("Since() = %v, want 1.5s", got)
	}

	later := start.Add(time.Hour)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestMockClock_ConcurrentAdvance(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewMockClock(start)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	if got := clock.Since(start); got != 50*time.Second {
		t.Errorf("Since() = %v, want 50s", got)
	}
}
