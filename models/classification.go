package models

import "fmt"

// Level is the verdict returned by the classification model.
type Level string

const (
	LevelEmergency    Level = "EMERGENCY"
	LevelNonEmergency Level = "NON_EMERGENCY"
	LevelNoConcern    Level = "NO_CONCERN"
)

// Levels lists every valid level in schema order.
var Levels = []Level{LevelEmergency, LevelNonEmergency, LevelNoConcern}

// Trigger is the downstream service a classification points at.
type Trigger string

const (
	Trigger911  Trigger = "911"
	Trigger311  Trigger = "311"
	TriggerNone Trigger = "NONE"
)

// Triggers lists every valid trigger in schema order.
var Triggers = []Trigger{Trigger911, Trigger311, TriggerNone}

// Track is the action family an ActionPlan belongs to.
type Track string

const (
	TrackEmergency Track = "emergency"
	TrackMunicipal Track = "municipal"
	TrackNone      Track = "none"
)

// Valid reports whether l is one of the three known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelEmergency, LevelNonEmergency, LevelNoConcern:
		return true
	}
	return false
}

// Trigger returns the only trigger consistent with l.
func (l Level) Trigger() Trigger {
	switch l {
	case LevelEmergency:
		return Trigger911
	case LevelNonEmergency:
		return Trigger311
	default:
		return TriggerNone
	}
}

// Track returns the action track for l.
func (l Level) Track() Track {
	switch l {
	case LevelEmergency:
		return TrackEmergency
	case LevelNonEmergency:
		return TrackMunicipal
	default:
		return TrackNone
	}
}

// Classification is the validated model verdict for one submission.
type Classification struct {
	Level             Level   `json:"level"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning"`
	RecommendedAction string  `json:"recommended_action"`
	Trigger           Trigger `json:"trigger"`
}

// NewClassification builds a classification whose trigger is derived from the level.
func NewClassification(level Level, confidence float64, reasoning, recommendedAction string) Classification {
	return Classification{
		Level:             level,
		Confidence:        confidence,
		Reasoning:         reasoning,
		RecommendedAction: recommendedAction,
		Trigger:           level.Trigger(),
	}
}

// Validate checks the level enum, the confidence range and the level/trigger pairing.
func (c Classification) Validate() error {
	if !c.Level.Valid() {
		return fmt.Errorf("unknown level %q", c.Level)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %v must be between 0 and 1", c.Confidence)
	}
	if want := c.Level.Trigger(); c.Trigger != want {
		return fmt.Errorf("trigger %q does not match level %s (want %q)", c.Trigger, c.Level, want)
	}
	return nil
}
