package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchopus_jobs_total",
		Help: "Transfer attempts by outcome (done, retry, error)",
	}, []string{"outcome"})

	jobFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchopus_job_failures_total",
		Help: "Failed transfer attempts by error kind",
	}, []string{"kind"})

	transferredBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetchopus_transferred_bytes_total",
		Help: "Bytes moved by scheduled transfers, counting both legs of staged transfers",
	})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetchopus_pass_duration_seconds",
		Help:    "Duration of scheduling passes",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	skippedPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetchopus_skipped_passes_total",
		Help: "Scheduling passes dropped because another pass was running",
	})
)
