package worker

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func TestRunIndexed_PreservesOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	delays := make([]time.Duration, 20)
	for i := range delays {
		delays[i] = time.Duration(rng.Intn(5)) * time.Millisecond
	}

	out, _ := RunIndexed(context.Background(), 4, len(delays), func(ctx context.Context, i int) int {
		time.Sleep(delays[i])
		return i * i
	})

	if len(out) != len(delays) {
		t.Fatalf("expected %d results, got %d", len(delays), len(out))
	}
	for i, v := range out {
		if v != i*i {
			t.Errorf("slot %d: expected %d, got %d", i, i*i, v)
		}
	}
}

func TestRunIndexed_Empty(t *testing.T) {
	called := false
	out, _ := RunIndexed(context.Background(), 3, 0, func(ctx context.Context, i int) string {
		called = true
		return "x"
	})
	if len(out) != 0 {
		t.Errorf("expected empty result, got %v", out)
	}
	if called {
		t.Error("fn should not be called for n == 0")
	}
}

func TestRunIndexed_FailuresStayInPlace(t *testing.T) {
	type outcome struct {
		value string
		err   bool
	}

	out, _ := RunIndexed(context.Background(), 3, 10, func(ctx context.Context, i int) outcome {
		if i == 2 || i == 5 {
			return outcome{value: "fallback", err: true}
		}
		return outcome{value: "ok"}
	})

	for i, o := range out {
		wantErr := i == 2 || i == 5
		if o.err != wantErr {
			t.Errorf("slot %d: expected err=%v, got %v", i, wantErr, o.err)
		}
	}
}

func TestRunIndexed_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, ran := RunIndexed(ctx, 2, 5, func(ctx context.Context, i int) int {
		return 1
	})
	if len(out) != 5 || len(ran) != 5 {
		t.Fatalf("expected a result slot per job, got %d/%d", len(out), len(ran))
	}
	for i, v := range out {
		if v != 0 {
			t.Errorf("slot %d: expected zero value for a job that never ran, got %d", i, v)
		}
		if ran[i] {
			t.Errorf("slot %d: reported as run after cancellation", i)
		}
	}
}

func TestRunIndexed_CancelMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Zero values are legitimate results, so only ran tells them apart
	out, ran := RunIndexed(ctx, 1, 50, func(ctx context.Context, i int) int {
		if i == 2 {
			cancel()
		}
		return 0
	})
	if len(out) != 50 {
		t.Fatalf("expected 50 slots, got %d", len(out))
	}
	for i := 0; i <= 2; i++ {
		if !ran[i] {
			t.Errorf("slot %d ran before cancellation but is not reported", i)
		}
	}
	if ran[49] {
		t.Error("last slot should not run after cancellation")
	}
}
