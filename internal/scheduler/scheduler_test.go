package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunStopsOnlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan struct{}, 16)

	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, cycle time.Time) error {
			ticks <- struct{}{}
			return nil
		})
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("scheduler stopped ticking")
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestTickErrorShortensDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks := make(chan struct{}, 16)

	// With the full interval only one tick would fit before the deadline;
	// the backoff path has to deliver several.
	s := New(Options{Interval: 10 * time.Second, ErrorBackoff: 5 * time.Millisecond}, zerolog.Nop())
	go func() {
		_ = s.Run(ctx, func(ctx context.Context, cycle time.Time) error {
			ticks <- struct{}{}
			return errors.New("transient")
		})
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("scheduler did not back off onto the error delay")
		}
	}
}

func TestStartupDelayHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(Options{Interval: time.Minute, StartupDelay: time.Hour}, zerolog.Nop())
	err := s.Run(ctx, func(ctx context.Context, cycle time.Time) error {
		t.Fatal("tick must not run before the startup delay elapses")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestDefaultErrorBackoff(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())
	if s.opts.ErrorBackoff != 30*time.Second {
		t.Fatalf("default backoff = %v, want half the interval", s.opts.ErrorBackoff)
	}
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("New should panic on a non-positive interval")
		}
	}()
	New(Options{}, zerolog.Nop())
}
