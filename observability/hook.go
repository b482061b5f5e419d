// Package observability receives lifecycle events from the dispatch pipeline.
// Hooks are best-effort: they log their own failures and never affect a request.
package observability

import (
	"context"
	"time"

	"incident-dispatch/models"
)

// Stage is a lifecycle point of one request.
type Stage string

const (
	StageSubmissionNormalized   Stage = "submission_normalized"
	StageClassificationObtained Stage = "classification_obtained"
	StageActionDrafted          Stage = "action_drafted"
	StageActionExecuted         Stage = "action_executed"
)

// Outcomes of an execution.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event describes one lifecycle point. Fields that do not apply to a stage are zero.
type Event struct {
	Stage      Stage         `json:"stage"`
	RequestID  string        `json:"request_id"`
	Track      models.Track  `json:"track,omitempty"`
	Level      models.Level  `json:"level,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	ImageCount int           `json:"image_count"`
	Outcome    string        `json:"outcome,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns,omitempty"`
	At         time.Time     `json:"at"`
}

// Hook observes lifecycle events.
type Hook interface {
	Observe(ctx context.Context, ev Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, ev Event)

func (f HookFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Nop discards events.
var Nop Hook = HookFunc(func(context.Context, Event) {})

// Multi fans one event out to every hook in order. Nil hooks are skipped.
type Multi []Hook

func (m Multi) Observe(ctx context.Context, ev Event) {
	for _, h := range m {
		if h != nil {
			h.Observe(ctx, ev)
		}
	}
}
