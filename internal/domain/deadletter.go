package domain

import "time"

// DeadLetter is a report that could not be delivered to the backend.
type DeadLetter struct {
	Report         *Report   `json:"report"`
	IdempotencyKey string    `json:"idempotencyKey"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"lastError"`
	FailedAt       time.Time `json:"failedAt"`
}
