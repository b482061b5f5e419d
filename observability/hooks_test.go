package observability

import (
	"context"
	"errors"
	"testing"

	"incident-dispatch/metrics"
	"incident-dispatch/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type recordingHook struct{ events []Event }

func (r *recordingHook) Observe(_ context.Context, ev Event) { r.events = append(r.events, ev) }

func TestMultiFansOutInOrder(t *testing.T) {
	a, b := &recordingHook{}, &recordingHook{}
	m := Multi{a, nil, b}

	m.Observe(context.Background(), Event{Stage: StageSubmissionNormalized, RequestID: "r1"})
	m.Observe(context.Background(), Event{Stage: StageActionDrafted, RequestID: "r1"})

	assert.Len(t, a.events, 2)
	assert.Equal(t, a.events, b.events)
	assert.Equal(t, StageActionDrafted, b.events[1].Stage)
}

type fakePublisher struct {
	msgs []interface{}
	err  error
}

func (f *fakePublisher) Publish(message interface{}) error {
	f.msgs = append(f.msgs, message)
	return f.err
}

func TestPublisherHook(t *testing.T) {
	p := &fakePublisher{}
	PublisherHook{Publisher: p}.Observe(context.Background(), Event{Stage: StageActionExecuted, RequestID: "r"})
	assert.Len(t, p.msgs, 1)

	p.err = errors.New("broker down")
	assert.NotPanics(t, func() {
		PublisherHook{Publisher: p}.Observe(context.Background(), Event{Stage: StageActionExecuted})
	})
}

type fakeRecorder struct {
	events []Event
	ctxErr error
}

func (f *fakeRecorder) RecordEvent(ctx context.Context, ev Event) error {
	f.ctxErr = ctx.Err()
	f.events = append(f.events, ev)
	return nil
}

func TestAuditHookRecordsActionsOnly(t *testing.T) {
	r := &fakeRecorder{}
	h := AuditHook{Recorder: r}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, s := range []Stage{StageSubmissionNormalized, StageClassificationObtained, StageActionDrafted, StageActionExecuted} {
		h.Observe(ctx, Event{Stage: s})
	}
	assert.Len(t, r.events, 2)
	assert.NoError(t, r.ctxErr, "audit writes survive client cancellation")
}

type fakeNotifier struct{ sent []Event }

func (f *fakeNotifier) NotifyExecuted(ev Event) error {
	f.sent = append(f.sent, ev)
	return nil
}

func TestNotifyHookOnlySuccessfulExecutions(t *testing.T) {
	n := &fakeNotifier{}
	h := NotifyHook{Notifier: n}

	h.Observe(context.Background(), Event{Stage: StageActionDrafted, Outcome: OutcomeSuccess})
	h.Observe(context.Background(), Event{Stage: StageActionExecuted, Outcome: OutcomeFailure})
	h.Observe(context.Background(), Event{Stage: StageActionExecuted, Outcome: OutcomeSuccess, Track: models.TrackEmergency})

	assert.Len(t, n.sent, 1)
	assert.Equal(t, models.TrackEmergency, n.sent[0].Track)
}

func TestMetricsHook(t *testing.T) {
	before := testutil.ToFloat64(metrics.ExecutionsTotal.WithLabelValues("municipal", OutcomeSuccess))
	MetricsHook{}.Observe(context.Background(), Event{Stage: StageActionExecuted, Track: models.TrackMunicipal, Outcome: OutcomeSuccess})
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ExecutionsTotal.WithLabelValues("municipal", OutcomeSuccess)))

	beforeLevel := testutil.ToFloat64(metrics.ClassificationsTotal.WithLabelValues("EMERGENCY"))
	MetricsHook{}.Observe(context.Background(), Event{Stage: StageClassificationObtained, Level: models.LevelEmergency, Confidence: 0.9})
	assert.Equal(t, beforeLevel+1, testutil.ToFloat64(metrics.ClassificationsTotal.WithLabelValues("EMERGENCY")))
}

func TestLogHookDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		LogHook{}.Observe(context.Background(), Event{Stage: StageActionExecuted, Outcome: OutcomeFailure, Detail: "boom"})
		Nop.Observe(context.Background(), Event{})
	})
}
