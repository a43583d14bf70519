package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrExecutionUnavailable is returned once the retry budget for
	// throttled execution calls is spent.
	ErrExecutionUnavailable = errors.New("execution backend unavailable")

	// ErrMalformedJob marks a queue payload that could not be decoded.
	ErrMalformedJob = errors.New("malformed job")

	// ErrUnsupportedLanguage marks a language missing from the language table.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrDeliveryFailed is returned when a report could not be delivered.
	ErrDeliveryFailed = errors.New("callback delivery failed")
)

// TransportError is a failed call to the execution backend.
// StatusCode is 0 when no HTTP response was received.
type TransportError struct {
	StatusCode  int
	RateLimited bool
	Message     string
	Err         error
}

// NewTransportError classifies a non-2xx response from the backend.
func NewTransportError(status int, message string) *TransportError {
	return &TransportError{
		StatusCode:  status,
		RateLimited: status == http.StatusTooManyRequests,
		Message:     message,
	}
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("execution transport: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("execution backend status %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("execution backend status %d", e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a throttling rejection from the backend.
func IsRateLimited(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.RateLimited
}

// QueueError wraps a failure of the queue pop itself.
type QueueError struct {
	Queue string
	Err   error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Queue, e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }
