package repository

import (
	"context"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
)

// IdempotencyStore guards against judging the same submission concurrently.
type IdempotencyStore interface {
	// AcquireLock attempts to acquire an exclusive processing lock for a submission.
	// Returns true if the lock was acquired (first time), false if already locked (duplicate).
	AcquireLock(ctx context.Context, id domain.SubmissionID) (bool, error)

	// ReleaseLock drops the lock once judging has finished.
	ReleaseLock(ctx context.Context, id domain.SubmissionID) error
}

// DeadLetterStore keeps reports whose callback delivery failed for good.
type DeadLetterStore interface {
	Put(ctx context.Context, letter *domain.DeadLetter) error
}

// QueueSource yields raw submission payloads.
type QueueSource interface {
	// Pop blocks until a payload is available or ctx is cancelled.
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}
