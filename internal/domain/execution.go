package domain

// UnlimitedMemory is the execution backend's sentinel for "no memory limit".
const UnlimitedMemory = -1

// SourceFile is one file shipped to the execution backend.
type SourceFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ExecutionRequest is the body of one call to the execution backend.
type ExecutionRequest struct {
	Language           string       `json:"language"`
	Version            string       `json:"version,omitempty"`
	Files              []SourceFile `json:"files"`
	Stdin              string       `json:"stdin"`
	Args               []string     `json:"args"`
	CompileTimeout     int          `json:"compile_timeout"`
	RunTimeout         int          `json:"run_timeout"`
	CompileMemoryLimit int          `json:"compile_memory_limit"`
	RunMemoryLimit     int          `json:"run_memory_limit"`
}

// ExecutionLimits are the ceilings attached to every request. The backend
// enforces them; nothing is timed locally.
type ExecutionLimits struct {
	CompileTimeoutMs   int
	RunTimeoutMs       int
	CompileMemoryLimit int
	RunMemoryLimit     int
}

// DefaultExecutionLimits mirrors the limits the judge has always sent.
func DefaultExecutionLimits() ExecutionLimits {
	return ExecutionLimits{
		CompileTimeoutMs:   6000,
		RunTimeoutMs:       2500,
		CompileMemoryLimit: UnlimitedMemory,
		RunMemoryLimit:     UnlimitedMemory,
	}
}

// PhaseResult is the outcome of the compile or run phase.
// Code is nil when the process was killed by a signal.
type PhaseResult struct {
	Stdout string  `json:"stdout"`
	Stderr string  `json:"stderr"`
	Output string  `json:"output"`
	Code   *int    `json:"code"`
	Signal *string `json:"signal"`
}

// Succeeded reports whether the phase exited with status 0.
func (p *PhaseResult) Succeeded() bool {
	return p.Code != nil && *p.Code == 0
}

// CombinedOutput returns the interleaved output, falling back to stdout.
func (p *PhaseResult) CombinedOutput() string {
	if p.Output != "" {
		return p.Output
	}
	return p.Stdout
}

// RawResult is the uninterpreted response of the execution backend.
type RawResult struct {
	Language string       `json:"language"`
	Version  string       `json:"version"`
	Compile  *PhaseResult `json:"compile,omitempty"`
	Run      *PhaseResult `json:"run,omitempty"`
}
