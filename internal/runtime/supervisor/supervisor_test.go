package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecordsFirstError(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want boom", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	s.Go0("panicky", func(ctx context.Context) { panic("nope") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("Wait = nil, want panic error")
	}
	snap := s.Snapshot()
	if len(snap.Loops) != 1 || snap.Loops[0].Panics != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestGoRestartRestartsUntilHealthy(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
	if snap := s.Snapshot(); snap.Loops[0].Restarts != 2 {
		t.Fatalf("restarts = %d, want 2", snap.Loops[0].Restarts)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	var runs atomic.Int32
	s.GoRestart("doomed", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("always")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("Wait = nil, want final error")
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestGoEveryKeepsCadenceAndWakes(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	wake := make(chan struct{}, 1)
	var runs atomic.Int32
	s.GoEvery("cycle", func() time.Duration { return time.Hour }, wake, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("cycle errors do not stop the loop")
	})

	waitFor(t, func() bool { return runs.Load() == 1 })
	wake <- struct{}{}
	waitFor(t, func() bool { return runs.Load() == 2 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
