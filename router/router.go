package router

import (
	"strings"

	"incident-dispatch/models"
	"incident-dispatch/report"
)

const (
	ServiceCodeGraffiti       = "input:Graffiti"
	ServiceCodeDamageProperty = "PW:BSM:Damage Property"

	MunicipalConfirmPrompt = "Would you like to submit a report for this issue?"
	EmergencyConfirmPrompt = "This appears to be an emergency. Would you like us to contact 911?"
)

// SelectServiceCode picks the 311 service code for an incident text.
func SelectServiceCode(text string) string {
	if strings.Contains(strings.ToLower(text), "graffiti") {
		return ServiceCodeGraffiti
	}
	return ServiceCodeDamageProperty
}

// Router turns a classification into an ActionPlan. It never executes anything.
type Router struct {
	composer *report.Composer
}

func New(composer *report.Composer) *Router {
	return &Router{composer: composer}
}

// Route maps the classification level to a track. Confidence does not affect the outcome.
func (r *Router) Route(c models.Classification, sub *models.IncidentSubmission, evidence []models.ImageEvidence) models.ActionPlan {
	switch c.Level {
	case models.LevelEmergency:
		return models.ActionPlan{
			Track:             models.TrackEmergency,
			NeedsConfirmation: true,
			RecommendedAction: EmergencyConfirmPrompt,
			Emergency: &models.EmergencyPayload{
				IncidentText: sub.Text,
				Location:     sub.Location,
			},
		}

	case models.LevelNonEmergency:
		code := SelectServiceCode(sub.Text)
		rep := r.composer.Compose(report.Input{
			Classification: c,
			Text:           sub.Text,
			Location:       sub.Location,
			ServiceCode:    code,
			Evidence:       evidence,
		})
		return models.ActionPlan{
			Track:             models.TrackMunicipal,
			NeedsConfirmation: true,
			ServiceCode:       code,
			RecommendedAction: MunicipalConfirmPrompt,
			Report:            &rep,
		}

	default:
		return models.ActionPlan{
			Track:             models.TrackNone,
			RecommendedAction: c.RecommendedAction,
		}
	}
}
