package mock

import (
	"context"
	"sync"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository"
)

// ---- IdempotencyStore mock ----

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore is a test double for repository.IdempotencyStore.
type IdempotencyStore struct {
	mu sync.Mutex

	AcquireLockFn func(ctx context.Context, id domain.SubmissionID) (bool, error)
	ReleaseLockFn func(ctx context.Context, id domain.SubmissionID) error

	AcquireCalls []domain.SubmissionID
	ReleaseCalls []domain.SubmissionID
}

func (m *IdempotencyStore) AcquireLock(ctx context.Context, id domain.SubmissionID) (bool, error) {
	m.mu.Lock()
	m.AcquireCalls = append(m.AcquireCalls, id)
	m.mu.Unlock()
	if m.AcquireLockFn != nil {
		return m.AcquireLockFn(ctx, id)
	}
	return true, nil // default: lock acquired
}

func (m *IdempotencyStore) ReleaseLock(ctx context.Context, id domain.SubmissionID) error {
	m.mu.Lock()
	m.ReleaseCalls = append(m.ReleaseCalls, id)
	m.mu.Unlock()
	if m.ReleaseLockFn != nil {
		return m.ReleaseLockFn(ctx, id)
	}
	return nil
}

// ---- DeadLetterStore mock ----

var _ repository.DeadLetterStore = (*DeadLetterStore)(nil)

// DeadLetterStore is a test double for repository.DeadLetterStore.
type DeadLetterStore struct {
	mu sync.Mutex

	PutFn func(ctx context.Context, letter *domain.DeadLetter) error

	Letters []*domain.DeadLetter
}

func (m *DeadLetterStore) Put(ctx context.Context, letter *domain.DeadLetter) error {
	m.mu.Lock()
	m.Letters = append(m.Letters, letter)
	m.mu.Unlock()
	if m.PutFn != nil {
		return m.PutFn(ctx, letter)
	}
	return nil
}

// ---- QueueSource mock ----

var _ repository.QueueSource = (*QueueSource)(nil)

// QueueSource is a test double for repository.QueueSource. Without PopFn it
// serves Payloads in order and then blocks until ctx is cancelled.
type QueueSource struct {
	mu sync.Mutex

	PopFn    func(ctx context.Context) ([]byte, error)
	Payloads [][]byte

	PopCalls int
	Closed   bool
}

func (m *QueueSource) Pop(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	m.PopCalls++
	if m.PopFn == nil && len(m.Payloads) > 0 {
		p := m.Payloads[0]
		m.Payloads = m.Payloads[1:]
		m.mu.Unlock()
		return p, nil
	}
	m.mu.Unlock()
	if m.PopFn != nil {
		return m.PopFn(ctx)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *QueueSource) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// Calls returns the number of Pop calls so far.
func (m *QueueSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PopCalls
}

// ---- Executor mock ----

// Executor is a test double for the execution backend client.
type Executor struct {
	mu sync.Mutex

	ExecuteFn func(ctx context.Context, req *domain.ExecutionRequest) (*domain.RawResult, error)

	ExecuteCalls []*domain.ExecutionRequest
}

func (m *Executor) Execute(ctx context.Context, req *domain.ExecutionRequest) (*domain.RawResult, error) {
	m.mu.Lock()
	m.ExecuteCalls = append(m.ExecuteCalls, req)
	m.mu.Unlock()
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, req)
	}
	code := 0
	return &domain.RawResult{
		Run: &domain.PhaseResult{Stdout: "Hello, World!\n", Code: &code},
	}, nil
}

// ---- Dispatcher mock ----

// Dispatcher is a test double for a scheduler-backed dispatcher.
type Dispatcher struct {
	mu sync.Mutex

	DispatchFn func(ctx context.Context, req *domain.ExecutionRequest) (*domain.RawResult, error)

	DispatchCalls []*domain.ExecutionRequest
}

func (m *Dispatcher) Dispatch(ctx context.Context, req *domain.ExecutionRequest) (*domain.RawResult, error) {
	m.mu.Lock()
	m.DispatchCalls = append(m.DispatchCalls, req)
	m.mu.Unlock()
	if m.DispatchFn != nil {
		return m.DispatchFn(ctx, req)
	}
	code := 0
	return &domain.RawResult{Run: &domain.PhaseResult{Code: &code}}, nil
}

// Calls returns a snapshot of recorded dispatches.
func (m *Dispatcher) Calls() []*domain.ExecutionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ExecutionRequest(nil), m.DispatchCalls...)
}

// ---- Deliverer mock ----

// Deliverer is a test double for callback delivery.
type Deliverer struct {
	mu sync.Mutex

	DeliverFn func(ctx context.Context, report *domain.Report) error

	Reports []*domain.Report
}

func (m *Deliverer) Deliver(ctx context.Context, report *domain.Report) error {
	m.mu.Lock()
	m.Reports = append(m.Reports, report)
	m.mu.Unlock()
	if m.DeliverFn != nil {
		return m.DeliverFn(ctx, report)
	}
	return nil
}

// ---- Processor mock ----

// Processor is a test double for the submission processor driven by the loop.
type Processor struct {
	mu sync.Mutex

	ExecuteFn func(ctx context.Context, sub *domain.Submission) error

	Submissions []*domain.Submission
}

func (m *Processor) Execute(ctx context.Context, sub *domain.Submission) error {
	m.mu.Lock()
	m.Submissions = append(m.Submissions, sub)
	m.mu.Unlock()
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, sub)
	}
	return nil
}

// Processed returns the ids of all submissions seen so far.
func (m *Processor) Processed() []domain.SubmissionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]domain.SubmissionID, len(m.Submissions))
	for i, s := range m.Submissions {
		ids[i] = s.ID
	}
	return ids
}
