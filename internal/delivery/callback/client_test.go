package callback_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/Sentinel/judge/internal/delivery/callback"
	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository/mock"
)

type backend struct {
	mu       sync.Mutex
	statuses []int // response status per attempt; last one repeats
	bodies   []map[string]any
	keys     []string
	paths    []string
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	b.bodies = append(b.bodies, body)
	b.keys = append(b.keys, r.Header.Get(callback.IdempotencyHeader))
	b.paths = append(b.paths, r.URL.Path)

	status := b.statuses[len(b.statuses)-1]
	if n := len(b.bodies) - 1; n < len(b.statuses) {
		status = b.statuses[n]
	}
	w.WriteHeader(status)
}

func (b *backend) attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bodies)
}

func newTestClient(url string, dlq *mock.DeadLetterStore) *callback.Client {
	var store repository.DeadLetterStore
	if dlq != nil {
		store = dlq
	}
	return callback.NewClient(callback.Config{
		BaseURL:     url + "/",
		Path:        "/api/judge/callback",
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Timeout:     time.Second,
	}, store, zap.NewNop())
}

func testReport() *domain.Report {
	detail := "Hidden"
	return &domain.Report{
		SubmissionID: "sub-1",
		Status:       domain.StatusWrongAnswer,
		Output: []domain.ReportedCase{
			{ID: 1, Status: domain.StatusAccepted, Input: "2 3", ExpectedOutput: "5", ActualOutput: "5", IsSample: true},
			{ID: 2, Status: domain.StatusWrongAnswer, Input: "Hidden", ExpectedOutput: "Hidden", ActualOutput: "Hidden", Error: &detail},
		},
	}
}

func TestDeliver_Success(t *testing.T) {
	b := &backend{statuses: []int{http.StatusOK}}
	srv := httptest.NewServer(b)
	defer srv.Close()

	dlq := &mock.DeadLetterStore{}
	client := newTestClient(srv.URL, dlq)
	if client.URL() != srv.URL+"/api/judge/callback" {
		t.Errorf("unexpected url %s", client.URL())
	}

	if err := client.Deliver(context.Background(), testReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.attempts() != 1 {
		t.Fatalf("expected 1 attempt, got %d", b.attempts())
	}

	body := b.bodies[0]
	if body["submissionId"] != "sub-1" || body["status"] != "Wrong Answer" {
		t.Errorf("unexpected body: %v", body)
	}
	output, ok := body["output"].([]any)
	if !ok || len(output) != 2 {
		t.Fatalf("expected 2 cases, got %v", body["output"])
	}
	first := output[0].(map[string]any)
	if first["id"] != float64(1) || first["error"] != nil || first["isSample"] != true {
		t.Errorf("unexpected first case: %v", first)
	}
	if b.paths[0] != "/api/judge/callback" {
		t.Errorf("unexpected path %s", b.paths[0])
	}
	if b.keys[0] == "" {
		t.Error("expected idempotency key header")
	}
	if len(dlq.Letters) != 0 {
		t.Errorf("expected no dead letters, got %d", len(dlq.Letters))
	}
}

// Test: transient failures are retried with a stable idempotency key.
func TestDeliver_RetriesTransientFailures(t *testing.T) {
	b := &backend{statuses: []int{http.StatusBadGateway, http.StatusTooManyRequests, http.StatusNoContent}}
	srv := httptest.NewServer(b)
	defer srv.Close()

	dlq := &mock.DeadLetterStore{}
	if err := newTestClient(srv.URL, dlq).Deliver(context.Background(), testReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.attempts() != 3 {
		t.Fatalf("expected 3 attempts, got %d", b.attempts())
	}
	if b.keys[0] != b.keys[1] || b.keys[1] != b.keys[2] {
		t.Errorf("idempotency key changed between attempts: %v", b.keys)
	}
	if len(dlq.Letters) != 0 {
		t.Errorf("expected no dead letters, got %d", len(dlq.Letters))
	}
}

// Test: exhausting attempts dead-letters the report.
func TestDeliver_DeadLettersAfterExhaustion(t *testing.T) {
	b := &backend{statuses: []int{http.StatusServiceUnavailable}}
	srv := httptest.NewServer(b)
	defer srv.Close()

	dlq := &mock.DeadLetterStore{}
	report := testReport()
	err := newTestClient(srv.URL, dlq).Deliver(context.Background(), report)
	if !errors.Is(err, domain.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if b.attempts() != 3 {
		t.Errorf("expected 3 attempts, got %d", b.attempts())
	}
	if len(dlq.Letters) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(dlq.Letters))
	}
	letter := dlq.Letters[0]
	if letter.Report != report || letter.Attempts != 3 || letter.IdempotencyKey != b.keys[0] {
		t.Errorf("unexpected dead letter: %+v", letter)
	}
	if letter.LastError == "" || letter.FailedAt.IsZero() {
		t.Errorf("dead letter missing failure details: %+v", letter)
	}
}

// Test: client errors are final and not retried.
func TestDeliver_ClientErrorNotRetried(t *testing.T) {
	b := &backend{statuses: []int{http.StatusBadRequest}}
	srv := httptest.NewServer(b)
	defer srv.Close()

	dlq := &mock.DeadLetterStore{}
	err := newTestClient(srv.URL, dlq).Deliver(context.Background(), testReport())
	if !errors.Is(err, domain.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if b.attempts() != 1 {
		t.Errorf("expected 1 attempt, got %d", b.attempts())
	}
	if len(dlq.Letters) != 1 || dlq.Letters[0].Attempts != 1 {
		t.Errorf("expected one dead letter after one attempt, got %+v", dlq.Letters)
	}
}

// Test: unreachable backend with no dead-letter store only logs.
func TestDeliver_UnreachableWithoutStore(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newTestClient(url, nil).Deliver(context.Background(), testReport())
	if !errors.Is(err, domain.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

// Test: a failing dead-letter store does not change the delivery error.
func TestDeliver_DeadLetterStoreFailure(t *testing.T) {
	b := &backend{statuses: []int{http.StatusInternalServerError}}
	srv := httptest.NewServer(b)
	defer srv.Close()

	dlq := &mock.DeadLetterStore{
		PutFn: func(ctx context.Context, letter *domain.DeadLetter) error {
			return errors.New("redis: connection refused")
		},
	}
	err := newTestClient(srv.URL, dlq).Deliver(context.Background(), testReport())
	if !errors.Is(err, domain.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if len(dlq.Letters) != 1 {
		t.Errorf("expected store to be called once, got %d", len(dlq.Letters))
	}
}
