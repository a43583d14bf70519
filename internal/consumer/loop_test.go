package consumer_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/Sentinel/judge/internal/consumer"
	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository/mock"
)

func startLoop(t *testing.T, src *mock.QueueSource, proc *mock.Processor, backoff time.Duration) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	loop := consumer.NewLoop(src, proc, backoff, zap.NewNop())
	go func() { done <- loop.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
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

// Test: payloads are processed in pop order.
func TestLoop_ProcessesInOrder(t *testing.T) {
	src := &mock.QueueSource{Payloads: [][]byte{
		[]byte(`{"submissionId":"1","code":"x","language":"python","mode":"run","testCases":[]}`),
		[]byte(`{"submissionId":2,"code":"x","language":"python","mode":"submit","testCases":[]}`),
	}}
	proc := &mock.Processor{}
	cancel, done := startLoop(t, src, proc, time.Millisecond)

	waitFor(t, func() bool { return len(proc.Processed()) == 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := proc.Processed()
	if ids[0] != "1" || ids[1] != "2" {
		t.Errorf("unexpected order %v", ids)
	}
}

// Test: a malformed payload is skipped and the next one still runs.
func TestLoop_SkipsMalformed(t *testing.T) {
	src := &mock.QueueSource{Payloads: [][]byte{
		[]byte(`not json`),
		[]byte(`{"submissionId":"3","mode":"compile"}`),
		[]byte(`{"code":"x","mode":"run"}`),
		[]byte(`{"submissionId":"4","mode":"run"}`),
	}}
	proc := &mock.Processor{}
	startLoop(t, src, proc, time.Millisecond)

	waitFor(t, func() bool { return len(proc.Processed()) == 1 })
	if id := proc.Processed()[0]; id != "4" {
		t.Errorf("expected only submission 4 processed, got %s", id)
	}
}

// Test: processor errors and panics do not stop the loop.
func TestLoop_IsolatesFailures(t *testing.T) {
	src := &mock.QueueSource{Payloads: [][]byte{
		[]byte(`{"submissionId":"panic","mode":"run"}`),
		[]byte(`{"submissionId":"fail","mode":"run"}`),
		[]byte(`{"submissionId":"ok","mode":"run"}`),
	}}
	proc := &mock.Processor{
		ExecuteFn: func(ctx context.Context, sub *domain.Submission) error {
			switch sub.ID {
			case "panic":
				panic("boom")
			case "fail":
				return domain.ErrDeliveryFailed
			}
			return nil
		},
	}
	startLoop(t, src, proc, time.Millisecond)

	waitFor(t, func() bool { return len(proc.Processed()) == 3 })
}

// Test: pop failures back off before retrying instead of spinning.
func TestLoop_BacksOffOnPopError(t *testing.T) {
	var calls atomic.Int32
	src := &mock.QueueSource{
		PopFn: func(ctx context.Context) ([]byte, error) {
			if calls.Add(1) == 1 {
				return nil, &domain.QueueError{Queue: "submissionQueue", Err: errors.New("connection refused")}
			}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	proc := &mock.Processor{}
	backoff := 100 * time.Millisecond
	start := time.Now()
	startLoop(t, src, proc, backoff)

	waitFor(t, func() bool { return src.Calls() == 2 })
	if elapsed := time.Since(start); elapsed < backoff {
		t.Errorf("expected second pop after %v, got %v", backoff, elapsed)
	}
}

// Test: cancellation during backoff stops the loop promptly.
func TestLoop_StopsDuringBackoff(t *testing.T) {
	src := &mock.QueueSource{
		PopFn: func(ctx context.Context) ([]byte, error) {
			return nil, errors.New("queue down")
		},
	}
	cancel, done := startLoop(t, src, &mock.Processor{}, time.Hour)

	waitFor(t, func() bool { return src.Calls() >= 1 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

// Test: an in-flight submission finishes even if shutdown is requested.
func TestLoop_DrainsInFlight(t *testing.T) {
	src := &mock.QueueSource{Payloads: [][]byte{[]byte(`{"submissionId":"1","mode":"run"}`)}}
	started := make(chan struct{})
	release := make(chan struct{})
	var cancelled atomic.Bool
	proc := &mock.Processor{
		ExecuteFn: func(ctx context.Context, sub *domain.Submission) error {
			close(started)
			<-release
			cancelled.Store(ctx.Err() != nil)
			return nil
		},
	}
	cancel, done := startLoop(t, src, proc, time.Millisecond)

	<-started
	cancel()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Load() {
		t.Error("processing context was cancelled")
	}
}
