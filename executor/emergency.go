package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"incident-dispatch/apperrors"
	"incident-dispatch/models"

	"github.com/apex/log"
)

const (
	emergencyService = "vapi"

	// DefaultVapiBaseURL is the voice-call provider's API root.
	DefaultVapiBaseURL = "https://api.vapi.ai"

	assistantName = "Emergency Reporter"

	emergencySystemPrompt = "You are an automated assistant placing a call to emergency services on behalf of a member of the public. " +
		"Clearly state the nature of the emergency and its location using only the information you were given. " +
		"Answer the dispatcher's questions briefly, say so when you do not know something, and stay on the line until the dispatcher ends the call."
)

// EmergencyOptions configures the voice-call provider.
type EmergencyOptions struct {
	BaseURL           string
	APIKey            string
	PhoneNumberID     string
	DestinationNumber string
	Timeout           time.Duration
}

// Emergency places outbound voice calls in two steps: create an assistant, then call with it.
type Emergency struct {
	opts       EmergencyOptions
	httpClient *http.Client
}

func NewEmergency(opts EmergencyOptions) *Emergency {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultVapiBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Emergency{opts: opts, httpClient: &http.Client{}}
}

type assistantModel struct {
	Provider string           `json:"provider"`
	Model    string           `json:"model"`
	Messages []map[string]any `json:"messages"`
}

type assistantRequest struct {
	Name         string         `json:"name"`
	FirstMessage string         `json:"firstMessage"`
	Model        assistantModel `json:"model"`
}

type callCustomer struct {
	Number string `json:"number"`
}

type callRequest struct {
	AssistantID   string       `json:"assistantId"`
	PhoneNumberID string       `json:"phoneNumberId"`
	Customer      callCustomer `json:"customer"`
}

type idResponse struct {
	ID string `json:"id"`
}

// FirstMessage is the scripted opening line of the call.
func FirstMessage(p *models.EmergencyPayload) string {
	location := strings.TrimSpace(p.Location)
	if location == "" {
		location = "an unknown location"
	}
	return fmt.Sprintf("Hello, this is an automated call reporting an emergency at %s. %s",
		location, strings.TrimSpace(p.IncidentText))
}

// Dispatch creates the assistant and places the call. Each step must return an id.
func (e *Emergency) Dispatch(ctx context.Context, p *models.EmergencyPayload) (*models.CallDetails, error) {
	if err := p.Validate(); err != nil {
		return nil, apperrors.Validation("%s", err.Error())
	}

	assistantID, _, err := e.post(ctx, "/assistant", assistantRequest{
		Name:         assistantName,
		FirstMessage: FirstMessage(p),
		Model: assistantModel{
			Provider: "openai",
			Model:    "gpt-4o",
			Messages: []map[string]any{{"role": "system", "content": emergencySystemPrompt}},
		},
	})
	if err != nil {
		return nil, err
	}
	log.WithField("assistant_id", assistantID).Info("executor.assistant_created")

	callID, raw, err := e.post(ctx, "/call", callRequest{
		AssistantID:   assistantID,
		PhoneNumberID: e.opts.PhoneNumberID,
		Customer:      callCustomer{Number: e.opts.DestinationNumber},
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"assistant_id": assistantID,
		"call_id":      callID,
	}).Info("executor.call_placed")

	return &models.CallDetails{AssistantID: assistantID, CallID: callID, Raw: raw}, nil
}

// post sends one JSON request and returns the id field of the reply.
func (e *Emergency) post(ctx context.Context, path string, payload any) (string, json.RawMessage, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := withTimeout(ctx, e.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.opts.BaseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.opts.APIKey)

	respBytes, status, err := do(e.httpClient, req)
	if err != nil {
		return "", nil, apperrors.External(emergencyService, fmt.Errorf("%s: %w", path, err))
	}
	if status < 200 || status >= 300 {
		log.Errorf("Voice provider %s returned %d: %s", path, status, string(respBytes))
		return "", nil, &apperrors.ExternalServiceError{Service: emergencyService, StatusCode: status, Body: string(respBytes)}
	}

	var out idResponse
	if err := json.Unmarshal(respBytes, &out); err != nil || out.ID == "" {
		return "", nil, &apperrors.ExternalServiceError{
			Service:    emergencyService,
			StatusCode: status,
			Body:       string(respBytes),
			Err:        errors.New(path + " response has no id"),
		}
	}
	return out.ID, json.RawMessage(respBytes), nil
}
