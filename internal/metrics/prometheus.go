package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts judged submissions by language, mode and verdict.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_submissions_total",
			Help: "Total number of judged submissions",
		},
		[]string{"language", "mode", "verdict"},
	)

	// SubmissionDuration tracks end-to-end judging time in seconds.
	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "judge_submission_duration_seconds",
			Help:    "Duration of submission judging in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"language"},
	)

	// CaseOutcomesTotal counts per-test-case outcomes.
	CaseOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_case_outcomes_total",
			Help: "Total number of test case outcomes",
		},
		[]string{"status"},
	)

	// BackendDispatches counts calls released by the scheduler.
	BackendDispatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "judge_backend_dispatches_total",
			Help: "Total number of execution backend calls dispatched",
		},
	)

	// SchedulerQueueDepth is the number of requests waiting for a dispatch slot.
	SchedulerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "judge_scheduler_queue_depth",
			Help: "Number of execution requests waiting in the scheduler",
		},
	)

	// ThrottleRetries counts retries caused by backend rate limiting.
	ThrottleRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "judge_throttle_retries_total",
			Help: "Total number of retries after a rate-limit rejection",
		},
	)

	// CallbackDeliveries counts callback attempts by result.
	CallbackDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_callback_deliveries_total",
			Help: "Total number of verdict callback attempts",
		},
		[]string{"result"},
	)

	// DeadLetters counts reports written to the dead-letter store.
	DeadLetters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "judge_dead_letters_total",
			Help: "Total number of undeliverable reports dead-lettered",
		},
	)

	// QueueErrors counts queue-level failures (pop errors, malformed jobs).
	QueueErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_queue_errors_total",
			Help: "Total number of queue consumption failures",
		},
		[]string{"kind"},
	)

	// WorkerBusy is 1 while a submission is being processed.
	WorkerBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "judge_worker_busy",
			Help: "Whether the worker is currently processing a submission",
		},
	)
)
