package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/metrics"
	"github.com/Harsh-BH/Sentinel/judge/internal/retry"
)

// Messages surfaced to the backend for InternalError outcomes.
const (
	msgBackendUnavailable = "execution backend unavailable"
	msgBackendError       = "execution backend error"
)

const (
	// MaxReportedBytes caps the output and error text reported per case.
	MaxReportedBytes = 64 * 1024

	outputTruncatedMsg = "\n... output truncated (64 KB limit) ..."
)

// Dispatcher submits one execution request, typically through a Scheduler.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *domain.ExecutionRequest) (*domain.RawResult, error)
}

// Case is one test case bound to its submission.
type Case struct {
	Index    int
	TestCase domain.TestCase
	Code     string
	Language domain.LanguageConfig
}

// Options tune classification.
type Options struct {
	// EmptyOutputPlaceholder replaces an empty trimmed output in reports.
	// Empty means the output is reported verbatim.
	EmptyOutputPlaceholder string
}

// Runner executes a single test case and classifies the result.
type Runner struct {
	dispatcher Dispatcher
	policy     retry.Policy
	limits     domain.ExecutionLimits
	opts       Options
	logger     *zap.Logger
}

// New creates a Runner.
func New(dispatcher Dispatcher, policy retry.Policy, limits domain.ExecutionLimits, opts Options, logger *zap.Logger) *Runner {
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			metrics.ThrottleRetries.Inc()
			logger.Warn("Execution backend throttled, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}
	}
	return &Runner{
		dispatcher: dispatcher,
		policy:     policy,
		limits:     limits,
		opts:       opts,
		logger:     logger,
	}
}

// BuildRequest derives the execution request for a case.
func BuildRequest(c Case, limits domain.ExecutionLimits) *domain.ExecutionRequest {
	return &domain.ExecutionRequest{
		Language:           c.Language.Runtime,
		Version:            c.Language.Version,
		Files:              []domain.SourceFile{{Name: c.Language.FileName, Content: c.Code}},
		Stdin:              c.TestCase.Input,
		Args:               []string{},
		CompileTimeout:     limits.CompileTimeoutMs,
		RunTimeout:         limits.RunTimeoutMs,
		CompileMemoryLimit: limits.CompileMemoryLimit,
		RunMemoryLimit:     limits.RunMemoryLimit,
	}
}

// Run executes the case. It never fails: dispatch errors become an
// InternalError outcome carrying the error in Cause.
func (r *Runner) Run(ctx context.Context, c Case) domain.CaseOutcome {
	req := BuildRequest(c, r.limits)

	raw, err := retry.Do(ctx, r.policy, func(ctx context.Context) (*domain.RawResult, error) {
		return r.dispatcher.Dispatch(ctx, req)
	})
	if err != nil {
		msg := msgBackendError
		if errors.Is(err, domain.ErrExecutionUnavailable) {
			msg = msgBackendUnavailable
		}
		outcome := base(c)
		outcome.Status = domain.StatusInternalError
		outcome.ErrorDetail = &msg
		outcome.Cause = err
		return outcome
	}

	return Classify(raw, c, r.opts)
}

// Classify interprets a backend result. It is a pure function of its inputs.
// A failed compile phase wins over the run phase.
func Classify(raw *domain.RawResult, c Case, opts Options) domain.CaseOutcome {
	outcome := base(c)

	if raw.Compile != nil && !raw.Compile.Succeeded() {
		detail := raw.Compile.Stderr
		if detail == "" {
			detail = raw.Compile.CombinedOutput()
		}
		detail = truncateOutput(detail)
		outcome.Status = domain.StatusCompilationError
		outcome.ErrorDetail = &detail
		return outcome
	}

	if raw.Run == nil {
		detail := "no run result"
		outcome.Status = domain.StatusRuntimeError
		outcome.ErrorDetail = &detail
		return outcome
	}

	if !raw.Run.Succeeded() {
		detail := truncateOutput(runtimeDetail(raw.Run))
		outcome.Status = domain.StatusRuntimeError
		outcome.ErrorDetail = &detail
		return outcome
	}

	actual := strings.TrimSpace(raw.Run.CombinedOutput())
	if actual != strings.TrimSpace(c.TestCase.Output) {
		outcome.Status = domain.StatusWrongAnswer
	} else {
		outcome.Status = domain.StatusAccepted
	}
	if actual == "" && opts.EmptyOutputPlaceholder != "" {
		actual = opts.EmptyOutputPlaceholder
	}
	outcome.ActualOutput = truncateOutput(actual)
	return outcome
}

func base(c Case) domain.CaseOutcome {
	return domain.CaseOutcome{
		Index:          c.Index,
		Input:          c.TestCase.Input,
		ExpectedOutput: c.TestCase.Output,
		IsSample:       c.TestCase.IsSample,
	}
}

func runtimeDetail(p *domain.PhaseResult) string {
	var status string
	switch {
	case p.Code != nil:
		status = fmt.Sprintf("exit code %d", *p.Code)
	case p.Signal != nil:
		status = "killed by " + *p.Signal
	default:
		status = "no exit code"
	}
	stderr := strings.TrimSpace(p.Stderr)
	if stderr == "" {
		return status
	}
	return status + ": " + stderr
}

// truncateOutput cuts s to MaxReportedBytes and appends a notice if it was cut.
func truncateOutput(s string) string {
	if len(s) <= MaxReportedBytes {
		return s
	}
	cut := MaxReportedBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + outputTruncatedMsg
}
