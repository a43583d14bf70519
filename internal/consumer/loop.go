package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/metrics"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository"
)

// DefaultPopBackoff is the pause after a failed pop.
const DefaultPopBackoff = 5 * time.Second

// Processor judges one submission.
type Processor interface {
	Execute(ctx context.Context, sub *domain.Submission) error
}

// Loop pops submissions from a queue and processes them strictly one at a time.
type Loop struct {
	source     repository.QueueSource
	processor  Processor
	popBackoff time.Duration
	logger     *zap.Logger
}

// NewLoop creates a consumer loop. A non-positive popBackoff uses DefaultPopBackoff.
func NewLoop(source repository.QueueSource, processor Processor, popBackoff time.Duration, logger *zap.Logger) *Loop {
	if popBackoff <= 0 {
		popBackoff = DefaultPopBackoff
	}
	return &Loop{
		source:     source,
		processor:  processor,
		popBackoff: popBackoff,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled. A submission already being processed
// when ctx is cancelled is allowed to finish.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Consumer loop started")

	for {
		payload, err := l.source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("Consumer loop stopped")
				return nil
			}
			l.popFailed(ctx, err)
			continue
		}

		l.handle(context.WithoutCancel(ctx), payload)
	}
}

func (l *Loop) popFailed(ctx context.Context, err error) {
	metrics.QueueErrors.WithLabelValues("pop").Inc()
	l.logger.Error("Queue pop failed, backing off",
		zap.Duration("backoff", l.popBackoff),
		zap.Error(err),
	)

	timer := time.NewTimer(l.popBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (l *Loop) handle(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Submission processing panic recovered", zap.Any("panic", r))
		}
	}()

	sub, err := domain.ParseSubmission(payload)
	if err != nil {
		metrics.QueueErrors.WithLabelValues("malformed").Inc()
		l.logger.Error("Discarding malformed submission",
			zap.Int("bytes", len(payload)),
			zap.Error(err),
		)
		return
	}

	if err := l.processor.Execute(ctx, sub); err != nil {
		l.logger.Error("Submission processing failed",
			zap.String("submission_id", sub.ID.String()),
			zap.Error(err),
		)
	}
}
