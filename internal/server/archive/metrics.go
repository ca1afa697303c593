package archive

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "streamvault_submissions_total", Help: "Ledger submission attempts by outcome"},
		[]string{"status"},
	)
	submissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "streamvault_submission_duration_seconds", Help: "Ledger submission latency", Buckets: prometheus.DefBuckets},
		[]string{"status"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "streamvault_queue_depth", Help: "Items in pending or in-flight state"},
	)
)

func init() {
	prometheus.MustRegister(submissionsTotal, submissionDuration, queueDepth)
}
