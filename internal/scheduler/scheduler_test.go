package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToBucket: true}, zerolog.Nop())
	now := time.Date(2026, 10, 20, 18, 2, 30, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2026, 10, 20, 18, 5, 0, 0, time.UTC)) {
		t.Fatalf("nextTick = %v", got)
	}
	onBoundary := time.Date(2026, 10, 20, 18, 5, 0, 0, time.UTC)
	if got := s.nextTick(onBoundary); !got.Equal(onBoundary.Add(5 * time.Minute)) {
		t.Fatalf("nextTick on boundary = %v", got)
	}
	if got := s.bucketStart(now); !got.Equal(time.Date(2026, 10, 20, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("bucketStart = %v", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())
	now := time.Date(2026, 10, 20, 18, 2, 30, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("nextTick = %v", got)
	}
}

func TestNextClock(t *testing.T) {
	loc := time.FixedZone("EDT", -4*3600)
	morning := time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC) // 08:00 EDT
	if got := NextClock(morning, 21, 0, loc); !got.Equal(time.Date(2026, 10, 21, 1, 0, 0, 0, time.UTC)) {
		t.Fatalf("same-day cutoff = %v", got.UTC())
	}
	late := time.Date(2026, 10, 21, 2, 0, 0, 0, time.UTC) // 22:00 EDT
	if got := NextClock(late, 21, 0, loc); !got.Equal(time.Date(2026, 10, 22, 1, 0, 0, 0, time.UTC)) {
		t.Fatalf("next-day cutoff = %v", got.UTC())
	}
}

func TestRunStopsOnErrStop(t *testing.T) {
	s := New(Options{Interval: time.Millisecond, RunImmediately: true}, zerolog.Nop())
	calls := 0
	err := s.Run(context.Background(), func(ctx context.Context, bucket time.Time) error {
		calls++
		if calls == 3 {
			return ErrStop
		}
		if calls == 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRunStopsAtDeadline(t *testing.T) {
	s := New(Options{Interval: time.Hour, Deadline: time.Now().Add(time.Minute)}, zerolog.Nop())
	called := false
	err := s.Run(context.Background(), func(ctx context.Context, bucket time.Time) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if called {
		t.Fatal("tick should not run past the deadline")
	}
}

func TestRunCancelled(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, func(context.Context, time.Time) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
