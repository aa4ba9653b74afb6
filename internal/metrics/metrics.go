package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobrunner_jobs_enqueued_total",
		Help: "Total number of jobs pushed onto the queue by this process",
	})

	JobsDequeuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobrunner_jobs_dequeued_total",
		Help: "Total number of payloads popped from the queue",
	})

	JobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobrunner_jobs_completed_total",
		Help: "Total number of jobs whose action finished without error",
	}, []string{"action"})

	JobsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobrunner_jobs_failed_total",
		Help: "Total number of jobs whose action returned an error",
	}, []string{"action"})

	MalformedJobsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobrunner_jobs_malformed_total",
		Help: "Total number of payloads that could not be decoded",
	})

	SinkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobrunner_sink_errors_total",
		Help: "Total number of outcome sink failures",
	}, []string{"sink"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobrunner_job_processing_duration_seconds",
		Help:    "Time taken to execute a job's action in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// RunnerState is -1 when stopped, 0 while waiting on the queue and 1 while processing.
	RunnerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobrunner_runner_state",
		Help: "Current runner state (-1 stopped, 0 waiting, 1 processing)",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobrunner_queue_depth",
		Help: "Length of the job list at the last readiness probe",
	})
)
