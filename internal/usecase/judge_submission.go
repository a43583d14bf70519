package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/metrics"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository"
	"github.com/Harsh-BH/Sentinel/judge/internal/runner"
)

// runFallbackCases is how many leading cases "run" mode evaluates when the
// problem has no sample cases.
const runFallbackCases = 2

// unsupportedLabel replaces unknown language names in metric labels.
const unsupportedLabel = "unsupported"

// CaseRunner executes one test case. Implementations never fail; errors are
// folded into the outcome.
type CaseRunner interface {
	Run(ctx context.Context, c runner.Case) domain.CaseOutcome
}

// Deliverer reports a verdict to the backend.
type Deliverer interface {
	Deliver(ctx context.Context, report *domain.Report) error
}

// Options tune the orchestrator.
type Options struct {
	// CompileShortCircuit stops dispatching the remaining cases once one case
	// fails to compile; those cases are reported with the same compile error.
	CompileShortCircuit bool
}

// JudgeSubmissionUsecase orchestrates the judging of one submission:
// selection → concurrent case runs → verdict → masking → delivery.
type JudgeSubmissionUsecase struct {
	languages  domain.LanguageTable
	runner     CaseRunner
	deliverer  Deliverer
	idempotent repository.IdempotencyStore
	opts       Options
	logger     *zap.Logger
}

// NewJudgeSubmissionUsecase creates a new JudgeSubmissionUsecase.
// idempotent may be nil to disable the duplicate guard.
func NewJudgeSubmissionUsecase(
	languages domain.LanguageTable,
	caseRunner CaseRunner,
	deliverer Deliverer,
	idempotent repository.IdempotencyStore,
	opts Options,
	logger *zap.Logger,
) *JudgeSubmissionUsecase {
	return &JudgeSubmissionUsecase{
		languages:  languages,
		runner:     caseRunner,
		deliverer:  deliverer,
		idempotent: idempotent,
		opts:       opts,
		logger:     logger,
	}
}

// Execute judges a submission and delivers the report. The returned error
// only describes delivery or locking problems; judging failures are part of
// the delivered verdict.
func (uc *JudgeSubmissionUsecase) Execute(ctx context.Context, sub *domain.Submission) error {
	log := uc.logger.With(zap.String("submission_id", sub.ID.String()))

	if uc.idempotent != nil {
		acquired, err := uc.idempotent.AcquireLock(ctx, sub.ID)
		switch {
		case err != nil:
			log.Warn("Idempotency check unavailable, judging anyway", zap.Error(err))
		case !acquired:
			log.Info("Duplicate submission detected, skipping")
			return nil
		default:
			defer func() {
				if err := uc.idempotent.ReleaseLock(context.WithoutCancel(ctx), sub.ID); err != nil {
					log.Warn("Failed to release idempotency lock", zap.Error(err))
				}
			}()
		}
	}

	log.Info("Processing submission",
		zap.String("problem", sub.Problem.Title),
		zap.String("language", sub.Language),
		zap.String("mode", string(sub.Mode)),
		zap.Int("test_cases", len(sub.TestCases)),
	)

	metrics.WorkerBusy.Set(1)
	startTime := time.Now()
	report := uc.Evaluate(ctx, sub)
	elapsed := time.Since(startTime)
	metrics.WorkerBusy.Set(0)

	language := uc.languageLabel(sub.Language)
	metrics.SubmissionsTotal.WithLabelValues(language, string(sub.Mode), string(report.Status)).Inc()
	metrics.SubmissionDuration.WithLabelValues(language).Observe(elapsed.Seconds())

	log.Info("Submission judged",
		zap.String("verdict", string(report.Status)),
		zap.Int("cases", len(report.Output)),
		zap.Duration("elapsed", elapsed),
	)

	if err := uc.deliverer.Deliver(ctx, report); err != nil {
		return fmt.Errorf("deliver %s: %w", sub.ID, err)
	}
	return nil
}

// Evaluate computes the masked report for a submission. It never fails: any
// panic is converted to an Internal Error verdict.
func (uc *JudgeSubmissionUsecase) Evaluate(ctx context.Context, sub *domain.Submission) (report *domain.Report) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("Submission evaluation panic recovered",
				zap.String("submission_id", sub.ID.String()),
				zap.Any("panic", r),
			)
			report = &domain.Report{
				SubmissionID: sub.ID,
				Status:       domain.StatusInternalError,
				Output:       []domain.ReportedCase{},
			}
		}
	}()

	selected := SelectCases(sub.Mode, sub.TestCases)

	var outcomes []domain.CaseOutcome
	res := uc.languages.Resolve(sub.Language)
	switch {
	case !res.Supported:
		uc.logger.Warn("Unsupported language",
			zap.String("submission_id", sub.ID.String()),
			zap.String("language", sub.Language),
		)
		outcomes = unsupported(res.Name, selected)
	case len(selected) == 0:
		outcomes = nil
	default:
		outcomes = uc.runAll(ctx, sub, res.Config, selected)
	}

	output := make([]domain.ReportedCase, 0, len(outcomes))
	for _, o := range outcomes {
		metrics.CaseOutcomesTotal.WithLabelValues(string(o.Status)).Inc()
		if o.Cause != nil {
			uc.logger.Error("Test case failed internally",
				zap.String("submission_id", sub.ID.String()),
				zap.Int("case", o.Index),
				zap.Error(o.Cause),
			)
		}
		output = append(output, o.Report(sub.Mode))
	}

	verdict := domain.Aggregate(outcomes)
	if !res.Supported {
		verdict = domain.StatusCompilationError
	}
	return &domain.Report{
		SubmissionID: sub.ID,
		Status:       verdict,
		Output:       output,
	}
}

// languageLabel keeps metric labels within the language table.
func (uc *JudgeSubmissionUsecase) languageLabel(language string) string {
	if res := uc.languages.Resolve(language); res.Supported {
		return res.Name
	}
	return unsupportedLabel
}

// SelectedCase is a test case with its 1-based index in the submission.
type SelectedCase struct {
	Index    int
	TestCase domain.TestCase
}

// SelectCases picks the cases to evaluate: every case on submit; sample cases
// on run, or the first two cases when there are no samples.
func SelectCases(mode domain.Mode, cases []domain.TestCase) []SelectedCase {
	var selected []SelectedCase
	for i, tc := range cases {
		if mode == domain.ModeSubmit || tc.IsSample {
			selected = append(selected, SelectedCase{Index: i + 1, TestCase: tc})
		}
	}
	if mode == domain.ModeRun && len(selected) == 0 {
		for i := 0; i < len(cases) && i < runFallbackCases; i++ {
			selected = append(selected, SelectedCase{Index: i + 1, TestCase: cases[i]})
		}
	}
	return selected
}

// runAll fans out one goroutine per case and waits for all of them. Outcomes
// keep the selection order.
func (uc *JudgeSubmissionUsecase) runAll(
	ctx context.Context,
	sub *domain.Submission,
	lang domain.LanguageConfig,
	selected []SelectedCase,
) []domain.CaseOutcome {
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg            sync.WaitGroup
		compileOnce   sync.Once
		compileFailed *domain.CaseOutcome
	)
	outcomes := make([]domain.CaseOutcome, len(selected))

	for i, sc := range selected {
		wg.Add(1)
		go func(i int, sc SelectedCase) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					msg := "internal error"
					outcomes[i] = domain.CaseOutcome{
						Index:          sc.Index,
						Status:         domain.StatusInternalError,
						Input:          sc.TestCase.Input,
						ExpectedOutput: sc.TestCase.Output,
						ErrorDetail:    &msg,
						IsSample:       sc.TestCase.IsSample,
						Cause:          fmt.Errorf("case runner panic: %v", r),
					}
				}
			}()

			o := uc.runner.Run(fanCtx, runner.Case{
				Index:    sc.Index,
				TestCase: sc.TestCase,
				Code:     sub.Code,
				Language: lang,
			})
			if o.Status == domain.StatusCompilationError && uc.opts.CompileShortCircuit {
				compileOnce.Do(func() {
					compileFailed = &o
					cancel()
				})
			}
			outcomes[i] = o
		}(i, sc)
	}
	wg.Wait()

	if compileFailed != nil && ctx.Err() == nil {
		for i, o := range outcomes {
			if o.Status == domain.StatusInternalError && errors.Is(o.Cause, context.Canceled) {
				outcomes[i].Status = domain.StatusCompilationError
				outcomes[i].ErrorDetail = compileFailed.ErrorDetail
				outcomes[i].ActualOutput = ""
				outcomes[i].Cause = nil
			}
		}
	}
	return outcomes
}

func unsupported(language string, selected []SelectedCase) []domain.CaseOutcome {
	msg := fmt.Sprintf("%s %q", domain.ErrUnsupportedLanguage, language)
	outcomes := make([]domain.CaseOutcome, len(selected))
	for i, sc := range selected {
		outcomes[i] = domain.CaseOutcome{
			Index:          sc.Index,
			Status:         domain.StatusCompilationError,
			Input:          sc.TestCase.Input,
			ExpectedOutput: sc.TestCase.Output,
			ErrorDetail:    &msg,
			IsSample:       sc.TestCase.IsSample,
		}
	}
	return outcomes
}
