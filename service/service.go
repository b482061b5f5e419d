package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"incident-dispatch/apperrors"
	"incident-dispatch/classifier"
	"incident-dispatch/draft"
	"incident-dispatch/models"
	"incident-dispatch/normalizer"
	"incident-dispatch/observability"
	"incident-dispatch/retrieval"
	"incident-dispatch/router"

	"github.com/apex/log"
)

// Extractor describes submitted images.
type Extractor interface {
	Extract(ctx context.Context, images [][]byte) ([]models.ImageEvidence, error)
}

// Classifier turns incident facts into a validated classification.
type Classifier interface {
	Classify(ctx context.Context, in classifier.Input) (*models.Classification, error)
}

// MunicipalExecutor files 311 reports.
type MunicipalExecutor interface {
	Submit(ctx context.Context, r *models.MunicipalReport) (json.RawMessage, error)
}

// EmergencyExecutor places emergency calls.
type EmergencyExecutor interface {
	Dispatch(ctx context.Context, p *models.EmergencyPayload) (*models.CallDetails, error)
}

// Deps are the collaborators of a Service. Retriever, Drafts and Hook are optional.
type Deps struct {
	Normalizer       *normalizer.Normalizer
	Extractor        Extractor
	Retriever        retrieval.Retriever
	RetrievalTimeout time.Duration
	Classifier       Classifier
	Router           *router.Router
	Municipal        MunicipalExecutor
	Emergency        EmergencyExecutor
	Drafts           *draft.Issuer
	Hook             observability.Hook
}

// Service runs the evaluate (draft) and confirm (execute) phases.
type Service struct {
	Deps
}

func New(deps Deps) *Service {
	if deps.Hook == nil {
		deps.Hook = observability.Nop
	}
	return &Service{Deps: deps}
}

// Evaluate classifies one submission and drafts the follow-up action. It never executes anything.
func (s *Service) Evaluate(ctx context.Context, text, location string, images [][]byte) (*models.EvaluateResponse, error) {
	start := time.Now()
	requestID := observability.RequestID(ctx)

	sub, err := s.Normalizer.Normalize(text, location, images)
	if err != nil {
		return nil, err
	}
	s.Hook.Observe(ctx, observability.Event{
		Stage:      observability.StageSubmissionNormalized,
		RequestID:  requestID,
		ImageCount: len(sub.Images),
		Elapsed:    time.Since(start),
		At:         time.Now(),
	})

	// retrieval runs alongside the image fan-out
	guidance := make(chan string, 1)
	go func() {
		guidance <- retrieval.Safe(ctx, s.Retriever, sub.Text, s.RetrievalTimeout)
	}()

	evidence, err := s.Extractor.Extract(ctx, sub.Images)
	if err != nil {
		return nil, fmt.Errorf("image description canceled: %w", err)
	}
	descriptions := make([]string, len(evidence))
	for i, ev := range evidence {
		descriptions[i] = ev.Description
	}

	c, err := s.Classifier.Classify(ctx, classifier.Input{
		Text:              sub.Text,
		Location:          sub.Location,
		ImageDescriptions: descriptions,
		Context:           <-guidance,
	})
	if err != nil {
		return nil, err
	}
	s.Hook.Observe(ctx, observability.Event{
		Stage:      observability.StageClassificationObtained,
		RequestID:  requestID,
		Level:      c.Level,
		Confidence: c.Confidence,
		ImageCount: len(sub.Images),
		Elapsed:    time.Since(start),
		At:         time.Now(),
	})

	plan := s.Router.Route(*c, sub, evidence)

	var token string
	if plan.NeedsConfirmation {
		token, err = s.Drafts.Issue(plan.Track, plan.Payload())
		if err != nil {
			return nil, fmt.Errorf("failed to issue draft token: %w", err)
		}
	}

	s.Hook.Observe(ctx, observability.Event{
		Stage:      observability.StageActionDrafted,
		RequestID:  requestID,
		Track:      plan.Track,
		Level:      c.Level,
		Confidence: c.Confidence,
		ImageCount: len(sub.Images),
		Detail:     plan.ServiceCode,
		Elapsed:    time.Since(start),
		At:         time.Now(),
	})

	imagesBase64 := make([]string, len(sub.Images))
	for i, img := range sub.Images {
		imagesBase64[i] = base64.StdEncoding.EncodeToString(img)
	}

	return &models.EvaluateResponse{
		Level:             c.Level,
		Confidence:        c.Confidence,
		Reasoning:         c.Reasoning,
		RecommendedAction: plan.RecommendedAction,
		Trigger:           c.Trigger,
		NeedsConfirmation: plan.NeedsConfirmation,
		ReportData:        plan.Payload(),
		ImagesBase64:      imagesBase64,
		DraftToken:        token,
	}, nil
}

// ConfirmMunicipal submits a drafted report. Images, when given, replace the
// report's attachments position by position and keep their descriptions.
func (s *Service) ConfirmMunicipal(ctx context.Context, report *models.MunicipalReport, images [][]byte, draftToken string) (*models.Confirm311Response, error) {
	start := time.Now()
	if report == nil {
		return nil, apperrors.Validation("report_data is required")
	}
	if len(images) > 0 {
		report.Images = mergeImages(report.Images, images)
	}
	if err := report.Validate(); err != nil {
		return nil, apperrors.Validation("%s", err.Error())
	}
	if err := s.Drafts.Verify(draftToken, models.TrackMunicipal, report); err != nil {
		return nil, err
	}

	submission, err := s.Municipal.Submit(ctx, report)
	s.executed(ctx, models.TrackMunicipal, len(report.Images), report.ServiceCode, start, err)
	if err != nil {
		return nil, err
	}

	return &models.Confirm311Response{
		Status:     "success",
		Message:    "Report submitted successfully",
		Submission: submission,
	}, nil
}

// ConfirmEmergency places the emergency call for a drafted payload.
// There is no replay protection: each call places a new call.
func (s *Service) ConfirmEmergency(ctx context.Context, payload *models.EmergencyPayload, draftToken string) (*models.Confirm911Response, error) {
	start := time.Now()
	if err := payload.Validate(); err != nil {
		return nil, apperrors.Validation("%s", err.Error())
	}
	if err := s.Drafts.Verify(draftToken, models.TrackEmergency, payload); err != nil {
		return nil, err
	}

	details, err := s.Emergency.Dispatch(ctx, payload)
	detail := ""
	if details != nil {
		detail = details.CallID
	}
	s.executed(ctx, models.TrackEmergency, 0, detail, start, err)
	if err != nil {
		return nil, err
	}

	return &models.Confirm911Response{
		Status:        "success",
		Message:       "Emergency call initiated",
		CallDetails:   *details,
		EmergencyInfo: *payload,
	}, nil
}

func (s *Service) executed(ctx context.Context, track models.Track, images int, detail string, start time.Time, err error) {
	ev := observability.Event{
		Stage:      observability.StageActionExecuted,
		RequestID:  observability.RequestID(ctx),
		Track:      track,
		ImageCount: images,
		Outcome:    observability.OutcomeSuccess,
		Detail:     detail,
		Elapsed:    time.Since(start),
		At:         time.Now(),
	}
	if err != nil {
		ev.Outcome = observability.OutcomeFailure
		ev.Detail = err.Error()
		log.WithError(err).WithField("track", track).Error("confirm.execute_failed")
	}
	s.Hook.Observe(ctx, ev)
}

func mergeImages(existing []models.ReportImage, images [][]byte) []models.ReportImage {
	out := make([]models.ReportImage, 0, len(images))
	for i, data := range images {
		img := models.ReportImage{Data: data}
		if i < len(existing) {
			img.Description = existing[i].Description
		}
		out = append(out, img)
	}
	return out
}
