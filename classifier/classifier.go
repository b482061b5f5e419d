package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"incident-dispatch/apperrors"
	"incident-dispatch/llm"
	"incident-dispatch/models"
	"incident-dispatch/parser"

	"github.com/apex/log"
)

const (
	systemPrompt = "You are a helpful assistant that classifies emergencies."

	notProvided = "Not provided"
	noImages    = "No images provided"
	noGuidance  = "No additional guidance."
)

// Input is everything the engine classifies in one call.
type Input struct {
	Text              string
	Location          string
	ImageDescriptions []string
	Context           string
}

// Engine classifies incidents with a single structured-output call.
type Engine struct {
	client  llm.StructuredClient
	timeout time.Duration
}

func NewEngine(client llm.StructuredClient, timeout time.Duration) *Engine {
	return &Engine{client: client, timeout: timeout}
}

// Classify makes exactly one model call. Any failure comes back as a
// *apperrors.ClassificationError; deadline expiry also matches apperrors.ErrTimeout.
func (e *Engine) Classify(ctx context.Context, in Input) (*models.Classification, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	response, err := e.client.CompleteJSON(ctx, llm.StructuredRequest{
		System:     systemPrompt,
		Prompt:     BuildPrompt(in),
		SchemaName: parser.ClassificationSchemaName,
		Schema:     parser.ClassificationSchema(),
	})
	if err != nil {
		return nil, apperrors.Classification(fmt.Errorf("%s request: %w", e.client.SourceName(), err))
	}

	c, err := parser.ParseClassification(response)
	if err != nil {
		log.WithFields(log.Fields{
			"source":   e.client.SourceName(),
			"response": truncate(response, 500),
		}).WithError(err).Warn("classifier.invalid_response")
		return nil, apperrors.Classification(err)
	}

	log.WithFields(log.Fields{
		"source":     e.client.SourceName(),
		"level":      c.Level,
		"confidence": c.Confidence,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("classifier.classified")
	return c, nil
}

// BuildPrompt renders the user prompt. Incident facts come before the
// "Guidance:" section.
func BuildPrompt(in Input) string {
	location := strings.TrimSpace(in.Location)
	if location == "" {
		location = notProvided
	}

	images := noImages
	if len(in.ImageDescriptions) > 0 {
		var b strings.Builder
		for i, d := range in.ImageDescriptions {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, d)
		}
		images = b.String()
	}

	guidance := strings.TrimSpace(in.Context)
	if guidance == "" {
		guidance = noGuidance
	}

	return fmt.Sprintf(`Evaluate the following situation with optional image context.
Text: %s
Location: %s
Image descriptions: %s

Guidance:
%s

Classification choices:
  1) EMERGENCY => call 911
  2) NON_EMERGENCY => call 311
  3) NO_CONCERN => do nothing

Return your reasoning, recommended action, confidence (0.0 to 1.0), and the correct trigger
('911' for EMERGENCY, '311' for NON_EMERGENCY, 'NONE' for NO_CONCERN) as valid JSON only.`,
		strings.TrimSpace(in.Text), location, images, guidance)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
