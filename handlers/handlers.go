package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"incident-dispatch/apperrors"
	"incident-dispatch/models"
	"incident-dispatch/version"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

const ServiceName = "incident-dispatch"

// Dispatcher runs the draft and confirm phases.
type Dispatcher interface {
	Evaluate(ctx context.Context, text, location string, images [][]byte) (*models.EvaluateResponse, error)
	ConfirmMunicipal(ctx context.Context, report *models.MunicipalReport, images [][]byte, draftToken string) (*models.Confirm311Response, error)
	ConfirmEmergency(ctx context.Context, payload *models.EmergencyPayload, draftToken string) (*models.Confirm911Response, error)
}

// Handlers represents the HTTP handlers
type Handlers struct {
	dispatcher     Dispatcher
	maxUploadBytes int64
}

// NewHandlers creates new HTTP handlers
func NewHandlers(dispatcher Dispatcher, maxUploadBytes int64) *Handlers {
	return &Handlers{dispatcher: dispatcher, maxUploadBytes: maxUploadBytes}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": ServiceName,
	})
}

// Version returns build information
func (h *Handlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get(ServiceName))
}

// Evaluate classifies an incident and drafts the follow-up action.
// Accepts multipart (text, location, images...) or JSON {text, location}.
func (h *Handlers) Evaluate(c *gin.Context) {
	h.limitBody(c)

	var (
		text, location string
		images         [][]byte
	)
	switch {
	case isMultipart(c):
		form, err := c.MultipartForm()
		if err != nil {
			writeError(c, bodyError("invalid multipart form", err))
			return
		}
		text = firstValue(form, "text")
		location = firstValue(form, "location")
		images, err = readFiles(form, "images", "image")
		if err != nil {
			writeError(c, err)
			return
		}
	case isJSON(c):
		var req models.EvaluateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, bodyError("invalid request body", err))
			return
		}
		text, location = req.Text, req.Location
	default:
		writeError(c, apperrors.Validation("unsupported content type %q", c.ContentType()))
		return
	}

	resp, err := h.dispatcher.Evaluate(c.Request.Context(), text, location, images)
	if err != nil {
		writeError(c, err)
		return
	}

	log.WithFields(log.Fields{
		"request_id":         c.GetString("request_id"),
		"level":              resp.Level,
		"needs_confirmation": resp.NeedsConfirmation,
	}).Info("evaluate.classified")
	c.JSON(http.StatusOK, resp)
}

// Confirm311 submits a drafted municipal report.
// Accepts JSON {report_data, images_base64?, draft_token?} or multipart with a
// report_data JSON field, images file parts and draft_token.
func (h *Handlers) Confirm311(c *gin.Context) {
	h.limitBody(c)

	var (
		req    models.Confirm311Request
		images [][]byte
	)
	switch {
	case isMultipart(c):
		form, err := c.MultipartForm()
		if err != nil {
			writeError(c, bodyError("invalid multipart form", err))
			return
		}
		raw := firstValue(form, "report_data")
		if raw == "" {
			writeError(c, apperrors.Validation("report_data is required"))
			return
		}
		if err := json.Unmarshal([]byte(raw), &req.ReportData); err != nil {
			writeError(c, apperrors.Validation("report_data is not valid JSON: %v", err))
			return
		}
		req.DraftToken = firstValue(form, "draft_token")
		images, err = readFiles(form, "images", "media")
		if err != nil {
			writeError(c, err)
			return
		}
	default:
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, bodyError("invalid request body", err))
			return
		}
		for i, s := range req.ImagesBase64 {
			data, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				writeError(c, apperrors.Validation("images_base64[%d] is not valid base64", i))
				return
			}
			images = append(images, data)
		}
	}

	resp, err := h.dispatcher.ConfirmMunicipal(c.Request.Context(), req.ReportData, images, req.DraftToken)
	if err != nil {
		writeError(c, err)
		return
	}

	log.WithFields(log.Fields{
		"request_id":   c.GetString("request_id"),
		"service_code": req.ReportData.ServiceCode,
	}).Info("confirm311.submitted")
	c.JSON(http.StatusOK, resp)
}

// Confirm911 places the emergency call for a drafted payload.
func (h *Handlers) Confirm911(c *gin.Context) {
	h.limitBody(c)

	var req models.Confirm911Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bodyError("invalid request body", err))
		return
	}

	resp, err := h.dispatcher.ConfirmEmergency(c.Request.Context(), req.ReportData, req.DraftToken)
	if err != nil {
		writeError(c, err)
		return
	}

	log.WithFields(log.Fields{
		"request_id": c.GetString("request_id"),
		"call_id":    resp.CallDetails.CallID,
	}).Info("confirm911.call_placed")
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) limitBody(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
}

// bodyError keeps size-limit errors intact so they render as 413.
func bodyError(what string, err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return apperrors.Validation("%s: %v", what, err)
}

func isMultipart(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEMultipartPOSTForm
}

func isJSON(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEJSON
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// readFiles reads the file parts of the first field name present, in order.
func readFiles(form *multipart.Form, fields ...string) ([][]byte, error) {
	for _, field := range fields {
		headers := form.File[field]
		if len(headers) == 0 {
			continue
		}
		out := make([][]byte, 0, len(headers))
		for i, fh := range headers {
			data, err := readFile(fh)
			if err != nil {
				return nil, apperrors.Validation("failed to read %s[%d]: %v", field, i, err)
			}
			out = append(out, data)
		}
		return out, nil
	}
	return nil, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "timeout":
		return http.StatusGatewayTimeout
	case "external_service":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err in the single error envelope.
func writeError(c *gin.Context, err error) {
	kind := apperrors.Kind(err)
	resp := models.ErrorResponse{Error: err.Error(), Kind: kind}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		resp.Kind = "validation"
		resp.Error = fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)
		c.JSON(http.StatusRequestEntityTooLarge, resp)
		return
	}

	var xerr *apperrors.ExternalServiceError
	if errors.As(err, &xerr) {
		resp.Details = xerr.Body
	}

	status := statusFor(kind)
	if kind == "internal" {
		log.WithError(err).WithField("request_id", c.GetString("request_id")).Error("request.failed")
		resp.Error = "Internal server error"
	} else {
		log.WithError(err).WithFields(log.Fields{
			"request_id": c.GetString("request_id"),
			"kind":       kind,
			"status":     status,
		}).Warn("request.rejected")
	}
	c.JSON(status, resp)
}
