package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository"
)

var _ repository.DeadLetterStore = (*pgDeadLetterRepo)(nil)

// Schema is the table the dead-letter store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS judge_dead_letters (
    id              BIGSERIAL PRIMARY KEY,
    submission_id   TEXT        NOT NULL,
    verdict         TEXT        NOT NULL,
    idempotency_key TEXT        NOT NULL UNIQUE,
    attempts        INT         NOT NULL,
    last_error      TEXT        NOT NULL,
    report          JSONB       NOT NULL,
    failed_at       TIMESTAMPTZ NOT NULL
)`

// Execer is the subset of *pgxpool.Pool the store needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgDeadLetterRepo struct {
	db Execer
}

// NewPostgresDeadLetterStore creates a PostgreSQL-backed dead-letter store.
func NewPostgresDeadLetterStore(db Execer) repository.DeadLetterStore {
	return &pgDeadLetterRepo{db: db}
}

// Migrate creates the dead-letter table if it does not exist.
func Migrate(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (r *pgDeadLetterRepo) Put(ctx context.Context, letter *domain.DeadLetter) error {
	report, err := json.Marshal(letter.Report)
	if err != nil {
		return fmt.Errorf("postgres: encode report: %w", err)
	}

	query := `
		INSERT INTO judge_dead_letters
		    (submission_id, verdict, idempotency_key, attempts, last_error, report, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET attempts = EXCLUDED.attempts, last_error = EXCLUDED.last_error, failed_at = EXCLUDED.failed_at`

	_, err = r.db.Exec(ctx, query,
		letter.Report.SubmissionID.String(), string(letter.Report.Status), letter.IdempotencyKey,
		letter.Attempts, letter.LastError, report, letter.FailedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert dead letter: %w", err)
	}
	return nil
}
