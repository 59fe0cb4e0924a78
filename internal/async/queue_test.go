package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerQueueProcessesAllJobs(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	q := NewWorkerQueue(func(_ context.Context, job Job) error {
		mu.Lock()
		seen[job.Path] = true
		mu.Unlock()
		return nil
	}, nil, WithWorkers(3), WithQueueSize(2))

	paths := []string{"a.pdf", "b.png", "c.pdf", "d.jpg", "e.pdf", "f.tiff"}
	for _, p := range paths {
		if err := q.Enqueue(context.Background(), Job{Path: p}); err != nil {
			t.Fatalf("enqueue %s: %v", p, err)
		}
	}
	if err := q.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	for _, p := range paths {
		if !seen[p] {
			t.Errorf("%s not processed", p)
		}
	}
}

func TestWorkerQueueRejectsAfterShutdown(t *testing.T) {
	q := NewWorkerQueue(func(context.Context, Job) error { return nil }, nil)
	if err := q.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(context.Background(), Job{Path: "late.pdf"}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := q.Shutdown(context.Background()); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
}

func TestWorkerQueueSurvivesFailuresAndPanics(t *testing.T) {
	var done atomic.Int32
	q := NewWorkerQueue(func(_ context.Context, job Job) error {
		defer done.Add(1)
		switch job.Path {
		case "panic":
			panic("boom")
		case "fail":
			return errors.New("nope")
		}
		return nil
	}, nil, WithWorkers(1))

	for _, p := range []string{"panic", "fail", "ok"} {
		_ = q.Enqueue(context.Background(), Job{Path: p})
	}
	_ = q.Shutdown(context.Background())
	if done.Load() != 3 {
		t.Errorf("handled %d jobs, want 3", done.Load())
	}
}

func TestWorkerQueueAppliesTimeout(t *testing.T) {
	var deadline atomic.Bool
	q := NewWorkerQueue(func(ctx context.Context, _ Job) error {
		_, ok := ctx.Deadline()
		deadline.Store(ok)
		return nil
	}, nil, WithProcessTimeout(time.Second))
	_ = q.Enqueue(context.Background(), Job{Path: "x"})
	_ = q.Shutdown(context.Background())
	if !deadline.Load() {
		t.Error("handler context had no deadline")
	}
}

func TestWorkerQueueEnqueueHonorsContextWhenFull(t *testing.T) {
	release := make(chan struct{})
	q := NewWorkerQueue(func(context.Context, Job) error { <-release; return nil }, nil, WithWorkers(1), WithQueueSize(1))

	_ = q.Enqueue(context.Background(), Job{Path: "busy"})
	// wait for the worker to take the first job so the buffer holds exactly one more
	time.Sleep(20 * time.Millisecond)
	_ = q.Enqueue(context.Background(), Job{Path: "buffered"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, Job{Path: "blocked"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	close(release)
	_ = q.Shutdown(context.Background())
}
