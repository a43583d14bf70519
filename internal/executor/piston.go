package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
)

const (
	// maxResponseBytes caps the backend response to prevent memory exhaustion.
	maxResponseBytes = 1 << 20 // 1 MiB

	// maxErrorMessageBytes caps the message kept from a non-2xx body.
	maxErrorMessageBytes = 512
)

// PistonClient calls a Piston-compatible execute endpoint. It performs a
// single request per Execute and never retries.
type PistonClient struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

// NewPistonClient creates a client for the given execute endpoint.
func NewPistonClient(endpoint string, timeout time.Duration, logger *zap.Logger) *PistonClient {
	return &PistonClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Execute sends one execution request and returns the raw backend result.
// All failures are returned as *domain.TransportError.
func (c *PistonClient) Execute(ctx context.Context, req *domain.ExecutionRequest) (*domain.RawResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("piston: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("piston: build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("piston: read response: %w", err)}
	}

	c.logger.Debug("piston call completed",
		zap.String("language", req.Language),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(startTime)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewTransportError(resp.StatusCode, errorMessage(data))
	}

	var result domain.RawResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &domain.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("piston: decode response: %w", err)}
	}
	return &result, nil
}

// errorMessage extracts Piston's {"message": "..."} body, or the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		msg = payload.Message
	}
	if len(msg) > maxErrorMessageBytes {
		msg = msg[:maxErrorMessageBytes]
	}
	return msg
}
