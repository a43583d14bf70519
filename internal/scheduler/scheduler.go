package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/metrics"
)

// DefaultInterval is the minimum spacing between two backend calls.
const DefaultInterval = 50 * time.Millisecond

// ErrSchedulerStopped is returned for requests made after Run has exited.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// Executor is the single remote call the scheduler paces.
type Executor interface {
	Execute(ctx context.Context, req *domain.ExecutionRequest) (*domain.RawResult, error)
}

type completion struct {
	result *domain.RawResult
	err    error
}

type dispatch struct {
	id   uuid.UUID
	ctx  context.Context
	req  *domain.ExecutionRequest
	done chan completion // buffered(1): exactly one signal per request
}

// Scheduler serializes dispatch to an Executor at a minimum spacing.
// Dispatch order equals enqueue order; completions are not ordered.
type Scheduler struct {
	exec     Executor
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	queue   []*dispatch
	stopped bool
	notify  chan struct{}

	// owned by the Run loop
	lastDispatch time.Time
	inflight     sync.WaitGroup
}

// New creates a scheduler. Run must be started before Dispatch can complete.
func New(exec Executor, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval < 0 {
		interval = 0
	}
	return &Scheduler{
		exec:     exec,
		interval: interval,
		logger:   logger,
		notify:   make(chan struct{}, 1),
	}
}

// Dispatch enqueues req and blocks until its execution completes or ctx ends.
func (s *Scheduler) Dispatch(ctx context.Context, req *domain.ExecutionRequest) (*domain.RawResult, error) {
	d := &dispatch{
		id:   uuid.New(),
		ctx:  ctx,
		req:  req,
		done: make(chan completion, 1),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrSchedulerStopped
	}
	s.queue = append(s.queue, d)
	metrics.SchedulerQueueDepth.Set(float64(len(s.queue)))
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}

	select {
	case c := <-d.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run is the single dispatch loop. It returns when ctx is cancelled, after
// failing every queued request and waiting for in-flight calls.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))
	defer s.shutdown()

	for {
		d := s.pop()
		if d == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.notify:
				continue
			}
		}

		if err := d.ctx.Err(); err != nil {
			d.done <- completion{err: err}
			continue
		}

		if wait := s.interval - time.Since(s.lastDispatch); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				d.done <- completion{err: ErrSchedulerStopped}
				return
			case <-timer.C:
			}
		}

		s.lastDispatch = time.Now()
		metrics.BackendDispatches.Inc()
		s.logger.Debug("Dispatching execution",
			zap.String("dispatch_id", d.id.String()),
			zap.String("language", d.req.Language),
		)

		s.inflight.Add(1)
		go s.invoke(d)
	}
}

func (s *Scheduler) invoke(d *dispatch) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Executor panic recovered",
				zap.String("dispatch_id", d.id.String()),
				zap.Any("panic", r),
			)
			d.done <- completion{err: errors.New("executor panic")}
		}
	}()

	result, err := s.exec.Execute(d.ctx, d.req)
	d.done <- completion{result: result, err: err}
}

func (s *Scheduler) pop() *dispatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	d := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	metrics.SchedulerQueueDepth.Set(float64(len(s.queue)))
	return d
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.stopped = true
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, d := range pending {
		d.done <- completion{err: ErrSchedulerStopped}
	}
	s.inflight.Wait()
	s.logger.Info("Scheduler stopped")
}
