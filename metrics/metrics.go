package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SubmissionsTotal counts normalized submissions.
	SubmissionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "incident",
		Subsystem: "dispatch",
		Name:      "submissions_total",
		Help:      "Total number of submissions that passed normalization.",
	})

	// SubmittedImages is the number of images per normalized submission.
	SubmittedImages = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "incident",
		Subsystem: "dispatch",
		Name:      "submission_images",
		Help:      "Number of images attached to a normalized submission.",
		Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12},
	})

	// ClassificationsTotal counts obtained classifications by level.
	ClassificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incident",
		Subsystem: "dispatch",
		Name:      "classifications_total",
		Help:      "Total number of classifications, labeled by level.",
	}, []string{"level"})

	// ClassificationConfidence is the model-reported confidence per level.
	ClassificationConfidence = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "incident",
		Subsystem: "dispatch",
		Name:      "classification_confidence",
		Help:      "Model-reported confidence of classifications, labeled by level.",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
	}, []string{"level"})

	// DraftsTotal counts drafted action plans by track.
	DraftsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incident",
		Subsystem: "dispatch",
		Name:      "drafts_total",
		Help:      "Total number of action plans drafted, labeled by track.",
	}, []string{"track"})

	// ExecutionsTotal counts confirmed executions by track and result.
	ExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incident",
		Subsystem: "dispatch",
		Name:      "executions_total",
		Help:      "Total number of confirmed executions, labeled by track and result.",
	}, []string{"track", "result"})

	// StageDurationSeconds is the time spent from request start to each lifecycle stage.
	StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "incident",
		Subsystem: "dispatch",
		Name:      "stage_duration_seconds",
		Help:      "Time from request start until a lifecycle stage was reached.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60, 120},
	}, []string{"stage"})
)

// Register registers dispatch metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionsTotal,
			SubmittedImages,
			ClassificationsTotal,
			ClassificationConfidence,
			DraftsTotal,
			ExecutionsTotal,
			StageDurationSeconds,
		)
	})
}
