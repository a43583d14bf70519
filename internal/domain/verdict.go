package domain

// Status is both the per-case outcome and the aggregate verdict.
type Status string

const (
	StatusAccepted         Status = "Accepted"
	StatusWrongAnswer      Status = "Wrong Answer"
	StatusRuntimeError     Status = "Runtime Error"
	StatusCompilationError Status = "Compilation Error"
	StatusInternalError    Status = "Internal Error"
)

// HiddenSentinel replaces detail fields of masked cases.
const HiddenSentinel = "Hidden"

// priority orders statuses for verdict aggregation; higher wins.
func (s Status) priority() int {
	switch s {
	case StatusInternalError:
		return 4
	case StatusCompilationError:
		return 3
	case StatusRuntimeError:
		return 2
	case StatusWrongAnswer:
		return 1
	}
	return 0
}

// CaseOutcome is the result of running one test case.
type CaseOutcome struct {
	Index          int
	Status         Status
	Input          string
	ExpectedOutput string
	ActualOutput   string
	ErrorDetail    *string
	IsSample       bool

	// Cause is the error that produced an InternalError outcome. Logged only.
	Cause error
}

// ReportedCase is the externally visible projection of a CaseOutcome.
type ReportedCase struct {
	ID             int     `json:"id"`
	Status         Status  `json:"status"`
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expectedOutput"`
	ActualOutput   string  `json:"actualOutput"`
	Error          *string `json:"error"`
	IsSample       bool    `json:"isSample"`
}

// Report is the callback body for one processed submission.
type Report struct {
	SubmissionID SubmissionID   `json:"submissionId"`
	Status       Status         `json:"status"`
	Output       []ReportedCase `json:"output"`
}

// Aggregate folds outcomes into one verdict. InternalError dominates, then
// CompilationError, RuntimeError and WrongAnswer. No outcomes means Accepted.
func Aggregate(outcomes []CaseOutcome) Status {
	verdict := StatusAccepted
	for _, o := range outcomes {
		if o.Status.priority() > verdict.priority() {
			verdict = o.Status
		}
	}
	return verdict
}

// Report projects an outcome for the backend, masking hidden cases on submit.
func (o CaseOutcome) Report(mode Mode) ReportedCase {
	if mode == ModeSubmit && !o.IsSample {
		hidden := HiddenSentinel
		return ReportedCase{
			ID:             o.Index,
			Status:         o.Status,
			Input:          HiddenSentinel,
			ExpectedOutput: HiddenSentinel,
			ActualOutput:   HiddenSentinel,
			Error:          &hidden,
			IsSample:       false,
		}
	}
	return ReportedCase{
		ID:             o.Index,
		Status:         o.Status,
		Input:          o.Input,
		ExpectedOutput: o.ExpectedOutput,
		ActualOutput:   o.ActualOutput,
		Error:          o.ErrorDetail,
		IsSample:       o.IsSample,
	}
}
