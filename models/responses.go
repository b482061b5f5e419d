package models

import "encoding/json"

// EvaluateResponse is the body returned by POST /evaluate.
type EvaluateResponse struct {
	Level             Level    `json:"level"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	RecommendedAction string   `json:"recommended_action"`
	Trigger           Trigger  `json:"trigger"`
	NeedsConfirmation bool     `json:"needs_confirmation"`
	ReportData        any      `json:"report_data"`
	ImagesBase64      []string `json:"images_base64"`
	DraftToken        string   `json:"draft_token,omitempty"`
}

// EvaluateRequest is the JSON form of POST /evaluate (text only).
type EvaluateRequest struct {
	Text     string `json:"text"`
	Location string `json:"location"`
}

// Confirm311Request is the JSON form of POST /confirm-311.
type Confirm311Request struct {
	ReportData   *MunicipalReport `json:"report_data"`
	ImagesBase64 []string         `json:"images_base64,omitempty"`
	DraftToken   string           `json:"draft_token,omitempty"`
}

// Confirm311Response is returned after a municipal submission.
type Confirm311Response struct {
	Status     string          `json:"status"`
	Message    string          `json:"message"`
	Submission json.RawMessage `json:"submission"`
}

// Confirm911Request is the body of POST /confirm-911.
type Confirm911Request struct {
	ReportData *EmergencyPayload `json:"report_data"`
	DraftToken string            `json:"draft_token,omitempty"`
}

// CallDetails describes the outbound emergency call.
type CallDetails struct {
	AssistantID string          `json:"assistant_id"`
	CallID      string          `json:"call_id"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// Confirm911Response is returned after an emergency call was placed.
type Confirm911Response struct {
	Status        string           `json:"status"`
	Message       string           `json:"message"`
	CallDetails   CallDetails      `json:"call_details"`
	EmergencyInfo EmergencyPayload `json:"emergency_info"`
}

// ErrorResponse is the single error envelope of the HTTP surface.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details string `json:"details,omitempty"`
}
