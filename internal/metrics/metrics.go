// Package metrics exposes Prometheus counters for submissions and checks.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "magpie"
)

var (
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"source",
	})

	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "submissions_total",
		Help:      "Count of processed submissions",
	}, []string{
		"frontend",
		"result",
	})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "records_total",
		Help:      "Count of test records produced by checkers",
	}, []string{
		"checker",
		"result",
	})

	checkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "check_duration_seconds",
		Help:      "Time spent running a checker on one submission",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{
		"checker",
	})
)

func result(passed bool) string {
	if passed {
		return "pass"
	}
	return "fail"
}

// RecordError counts an error from the named source.
func RecordError(source string) {
	errorsTotal.WithLabelValues(source).Inc()
}

// RecordSubmission counts a finished submission.
func RecordSubmission(frontend string, passed bool) {
	submissionsTotal.WithLabelValues(frontend, result(passed)).Inc()
}

// RecordCheck counts a checker's records and observes how long it took.
func RecordCheck(checker string, passed, failed int, took time.Duration) {
	recordsTotal.WithLabelValues(checker, "pass").Add(float64(passed))
	recordsTotal.WithLabelValues(checker, "fail").Add(float64(failed))
	checkDuration.WithLabelValues(checker).Observe(took.Seconds())
}
