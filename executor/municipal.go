package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"incident-dispatch/apperrors"
	"incident-dispatch/models"

	"github.com/apex/log"
)

const municipalService = "open311"

// Municipal submits 311 reports as multipart forms.
type Municipal struct {
	url        string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func NewMunicipal(url, apiKey string, timeout time.Duration) *Municipal {
	return &Municipal{
		url:        url,
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Submit posts the report and returns the endpoint's JSON reply verbatim.
func (m *Municipal) Submit(ctx context.Context, r *models.MunicipalReport) (json.RawMessage, error) {
	if err := r.Validate(); err != nil {
		return nil, apperrors.Validation("%s", err.Error())
	}

	body, contentType, err := encodeReport(r, m.apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	ctx, cancel := withTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	respBytes, status, err := do(m.httpClient, req)
	if err != nil {
		return nil, apperrors.External(municipalService, err)
	}
	if status < 200 || status >= 300 {
		log.Errorf("Municipal endpoint returned %d: %s", status, string(respBytes))
		return nil, &apperrors.ExternalServiceError{Service: municipalService, StatusCode: status, Body: string(respBytes)}
	}
	if !json.Valid(respBytes) {
		return nil, &apperrors.ExternalServiceError{
			Service:    municipalService,
			StatusCode: status,
			Body:       string(respBytes),
			Err:        errors.New("response is not JSON"),
		}
	}

	log.WithFields(log.Fields{
		"service_code": r.ServiceCode,
		"images":       len(r.Images),
		"elapsed_ms":   time.Since(start).Milliseconds(),
	}).Info("executor.municipal_submitted")
	return json.RawMessage(respBytes), nil
}

func encodeReport(r *models.MunicipalReport, apiKey string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"service_code", r.ServiceCode},
		{"service_name", r.ServiceName},
		{"description", r.Description},
		{"address_string", r.AddressString},
		{"requested_datetime", r.RequestedDatetime},
		{"status", r.Status},
	}
	if apiKey != "" {
		fields = append(fields, [2]string{"api_key", apiKey})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write %s field: %w", f[0], err)
		}
	}

	for i, img := range r.Images {
		part, err := writer.CreateFormFile("media", fmt.Sprintf("image_%d.jpg", i))
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("failed to copy file data: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
