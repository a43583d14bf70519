package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/metrics"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository"
)

// IdempotencyHeader carries a key that is stable across attempts of one report.
const IdempotencyHeader = "Idempotency-Key"

// Config controls delivery.
type Config struct {
	BaseURL     string
	Path        string
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

// Client delivers verdict reports to the backend at least once, falling back
// to a dead-letter store when every attempt fails.
type Client struct {
	url         string
	maxAttempts int
	backoff     time.Duration
	http        *http.Client
	deadLetters repository.DeadLetterStore
	logger      *zap.Logger
}

// NewClient creates a callback client. deadLetters may be nil, in which case
// undeliverable reports are only logged.
func NewClient(cfg Config, deadLetters repository.DeadLetterStore, logger *zap.Logger) *Client {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		url:         strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Path, "/"),
		maxAttempts: attempts,
		backoff:     cfg.Backoff,
		http:        &http.Client{Timeout: cfg.Timeout},
		deadLetters: deadLetters,
		logger:      logger,
	}
}

// URL returns the callback endpoint.
func (c *Client) URL() string { return c.url }

// Deliver posts the report. It returns an error wrapping
// domain.ErrDeliveryFailed only after the report has been dead-lettered.
func (c *Client) Deliver(ctx context.Context, report *domain.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("callback: encode report: %w", err)
	}
	key := uuid.NewString()

	var (
		lastErr error
		attempt int
	)
	for attempt < c.maxAttempts {
		attempt++
		retryable, err := c.post(ctx, body, key)
		if err == nil {
			metrics.CallbackDeliveries.WithLabelValues("delivered").Inc()
			c.logger.Info("Verdict sent",
				zap.String("submission_id", report.SubmissionID.String()),
				zap.String("verdict", string(report.Status)),
				zap.Int("attempt", attempt),
			)
			return nil
		}
		lastErr = err
		metrics.CallbackDeliveries.WithLabelValues("failed").Inc()
		c.logger.Warn("Callback attempt failed",
			zap.String("submission_id", report.SubmissionID.String()),
			zap.Int("attempt", attempt),
			zap.Bool("retryable", retryable),
			zap.Error(err),
		)
		if !retryable || attempt == c.maxAttempts {
			break
		}
		if err := sleep(ctx, c.backoff<<(attempt-1)); err != nil {
			lastErr = err
			break
		}
	}

	c.deadLetter(report, key, attempt, lastErr)
	return fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, lastErr)
}

// post performs one attempt. The bool reports whether a failure may be retried.
func (c *Client) post(ctx context.Context, body []byte, key string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("callback: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, key)

	resp, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("callback: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return false, nil
	}
	retryable := resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= 500
	return retryable, fmt.Errorf("callback: backend returned status %d", resp.StatusCode)
}

func (c *Client) deadLetter(report *domain.Report, key string, attempts int, cause error) {
	metrics.DeadLetters.Inc()
	c.logger.Error("Callback undeliverable, dead-lettering report",
		zap.String("submission_id", report.SubmissionID.String()),
		zap.String("verdict", string(report.Status)),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	if c.deadLetters == nil {
		return
	}

	letter := &domain.DeadLetter{
		Report:         report,
		IdempotencyKey: key,
		Attempts:       attempts,
		FailedAt:       time.Now().UTC(),
	}
	if cause != nil {
		letter.LastError = cause.Error()
	}

	// The submission context may already be cancelled during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.deadLetters.Put(ctx, letter); err != nil {
		c.logger.Error("Failed to store dead letter",
			zap.String("submission_id", report.SubmissionID.String()),
			zap.Error(err),
		)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
