package observability

import (
	"context"

	"incident-dispatch/metrics"

	"github.com/apex/log"
)

// LogHook writes each event as a structured log line named after its stage.
type LogHook struct{}

func (LogHook) Observe(_ context.Context, ev Event) {
	fields := log.Fields{
		"request_id": ev.RequestID,
		"images":     ev.ImageCount,
	}
	if ev.Track != "" {
		fields["track"] = ev.Track
	}
	if ev.Level != "" {
		fields["level"] = ev.Level
		fields["confidence"] = ev.Confidence
	}
	if ev.Outcome != "" {
		fields["outcome"] = ev.Outcome
	}
	if ev.Detail != "" {
		fields["detail"] = ev.Detail
	}
	if ev.Elapsed > 0 {
		fields["elapsed_ms"] = ev.Elapsed.Milliseconds()
	}

	entry := log.WithFields(fields)
	if ev.Outcome == OutcomeFailure {
		entry.Warn("dispatch." + string(ev.Stage))
		return
	}
	entry.Info("dispatch." + string(ev.Stage))
}

// MetricsHook records events in the Prometheus collectors of package metrics.
type MetricsHook struct{}

func (MetricsHook) Observe(_ context.Context, ev Event) {
	switch ev.Stage {
	case StageSubmissionNormalized:
		metrics.SubmissionsTotal.Inc()
		metrics.SubmittedImages.Observe(float64(ev.ImageCount))
	case StageClassificationObtained:
		metrics.ClassificationsTotal.WithLabelValues(string(ev.Level)).Inc()
		metrics.ClassificationConfidence.WithLabelValues(string(ev.Level)).Observe(ev.Confidence)
	case StageActionDrafted:
		metrics.DraftsTotal.WithLabelValues(string(ev.Track)).Inc()
	case StageActionExecuted:
		metrics.ExecutionsTotal.WithLabelValues(string(ev.Track), ev.Outcome).Inc()
	}
	if ev.Elapsed > 0 {
		metrics.StageDurationSeconds.WithLabelValues(string(ev.Stage)).Observe(ev.Elapsed.Seconds())
	}
}

// Publisher sends a JSON message to a broker.
type Publisher interface {
	Publish(message interface{}) error
}

// PublisherHook forwards every event to a message broker.
type PublisherHook struct {
	Publisher Publisher
}

func (h PublisherHook) Observe(_ context.Context, ev Event) {
	if err := h.Publisher.Publish(ev); err != nil {
		log.Warnf("Failed to publish %s event for request %s: %v", ev.Stage, ev.RequestID, err)
	}
}

// Recorder persists events.
type Recorder interface {
	RecordEvent(ctx context.Context, ev Event) error
}

// AuditHook persists drafted and executed actions. Other stages are skipped.
type AuditHook struct {
	Recorder Recorder
}

func (h AuditHook) Observe(ctx context.Context, ev Event) {
	if ev.Stage != StageActionDrafted && ev.Stage != StageActionExecuted {
		return
	}
	// the audit row is written even if the client went away
	if err := h.Recorder.RecordEvent(context.WithoutCancel(ctx), ev); err != nil {
		log.Warnf("Failed to record %s event for request %s: %v", ev.Stage, ev.RequestID, err)
	}
}

// Notifier announces executed actions to people.
type Notifier interface {
	NotifyExecuted(ev Event) error
}

// NotifyHook sends a notification for every successfully executed action.
type NotifyHook struct {
	Notifier Notifier
}

func (h NotifyHook) Observe(_ context.Context, ev Event) {
	if ev.Stage != StageActionExecuted || ev.Outcome != OutcomeSuccess {
		return
	}
	if err := h.Notifier.NotifyExecuted(ev); err != nil {
		log.Warnf("Failed to notify about %s execution (request %s): %v", ev.Track, ev.RequestID, err)
	}
}
