package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Mode selects which test cases of a submission are evaluated.
type Mode string

const (
	ModeRun    Mode = "run"
	ModeSubmit Mode = "submit"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeRun || m == ModeSubmit
}

// SubmissionID is the opaque identifier assigned by the backend.
// The queue payload may carry it as a JSON string or number.
type SubmissionID string

func (id *SubmissionID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = SubmissionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("submission id: %w", err)
	}
	*id = SubmissionID(n.String())
	return nil
}

func (id SubmissionID) String() string { return string(id) }

// Problem identifies the problem a submission was made against.
type Problem struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
}

// TestCase is one input / expected-output pair.
type TestCase struct {
	Input    string `json:"input"`
	Output   string `json:"output"`
	IsSample bool   `json:"isSample"`
}

// Submission is a unit of work pulled from the queue.
type Submission struct {
	ID        SubmissionID `json:"id"`
	Code      string       `json:"code"`
	Language  string       `json:"language"`
	Problem   Problem      `json:"problem"`
	TestCases []TestCase   `json:"testCases"`
	Mode      Mode         `json:"mode"`
}

// ParseSubmission decodes a raw queue payload. Errors wrap ErrMalformedJob.
func ParseSubmission(raw []byte) (*Submission, error) {
	var sub Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedJob)
	}
	if !sub.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrMalformedJob, sub.Mode)
	}
	return &sub, nil
}
