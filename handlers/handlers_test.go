package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"incident-dispatch/classifier"
	"incident-dispatch/draft"
	"incident-dispatch/executor"
	"incident-dispatch/models"
	"incident-dispatch/normalizer"
	"incident-dispatch/report"
	"incident-dispatch/retrieval"
	"incident-dispatch/router"
	"incident-dispatch/service"
	"incident-dispatch/stubllm"
	"incident-dispatch/vision"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstreams struct {
	open311      *httptest.Server
	vapi         *httptest.Server
	open311Media atomic.Int32
	open311Calls atomic.Int32
	open311Down  atomic.Bool
	calls        atomic.Int32
}

func newUpstreams(t *testing.T) *upstreams {
	u := &upstreams{}
	u.open311 = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u.open311Down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("down for maintenance"))
			return
		}
		require.NoError(t, r.ParseMultipartForm(1<<20))
		u.open311Calls.Add(1)
		u.open311Media.Store(int32(len(r.MultipartForm.File["media"])))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","message":"Report received"}`))
	}))
	u.vapi = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/assistant":
			w.Write([]byte(`{"id":"asst-1"}`))
		case "/call":
			n := u.calls.Add(1)
			w.Write([]byte(`{"id":"call-` + string(rune('0'+n)) + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(func() {
		u.open311.Close()
		u.vapi.Close()
	})
	return u
}

func setupRouter(t *testing.T, u *upstreams, drafts *draft.Issuer, maxUpload int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	llm := stubllm.NewClient()
	svc := service.New(service.Deps{
		Normalizer:       normalizer.New(normalizer.Limits{MaxImages: 4}),
		Extractor:        vision.NewExtractor(llm, vision.Options{Concurrency: 2, Timeout: time.Second}),
		Retriever:        retrieval.NewDefault(),
		RetrievalTimeout: time.Second,
		Classifier:       classifier.NewEngine(llm, time.Second),
		Router:           router.New(report.NewComposer(nil)),
		Municipal:        executor.NewMunicipal(u.open311.URL, "", time.Second),
		Emergency: executor.NewEmergency(executor.EmergencyOptions{
			BaseURL:           u.vapi.URL,
			APIKey:            "key",
			PhoneNumberID:     "phone",
			DestinationNumber: "+15550100",
			Timeout:           time.Second,
		}),
		Drafts: drafts,
	})

	h := NewHandlers(svc, maxUpload)
	r := gin.New()
	r.GET("/health", h.HealthCheck)
	r.GET("/version", h.Version)
	r.POST("/evaluate", h.Evaluate)
	r.POST("/confirm-311", h.Confirm311)
	r.POST("/confirm-911", h.Confirm911)
	return r
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func multipartEvaluate(t *testing.T, fields map[string]string, images ...string) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for i, img := range images {
		fw, err := mw.CreateFormFile("images", "img"+string(rune('a'+i))+".jpg")
		require.NoError(t, err)
		io.WriteString(fw, img)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/evaluate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	r := setupRouter(t, newUpstreams(t), nil, 0)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, ServiceName, body["service"])
}

func TestVersion(t *testing.T) {
	r := setupRouter(t, newUpstreams(t), nil, 0)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"service":"incident-dispatch"`)
}

func TestEvaluateJSONNoConcern(t *testing.T) {
	r := setupRouter(t, newUpstreams(t), nil, 0)
	w := postJSON(r, "/evaluate", models.EvaluateRequest{Text: "Lovely sunset at the beach"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[map[string]any](t, w)
	assert.Equal(t, "NO_CONCERN", resp["level"])
	assert.Equal(t, false, resp["needs_confirmation"])
	assert.Nil(t, resp["report_data"])
	assert.Equal(t, []any{}, resp["images_base64"])
}

func TestEvaluateMissingText(t *testing.T) {
	r := setupRouter(t, newUpstreams(t), nil, 0)
	w := postJSON(r, "/evaluate", models.EvaluateRequest{Location: "Main St"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[models.ErrorResponse](t, w)
	assert.Equal(t, "validation", resp.Kind)
	assert.Equal(t, "text is required", resp.Error)
}

func TestEvaluateUnsupportedContentType(t *testing.T) {
	r := setupRouter(t, newUpstreams(t), nil, 0)
	req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader("text=hi"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode[models.ErrorResponse](t, w).Kind)
}

func TestEvaluateBodyTooLarge(t *testing.T) {
	r := setupRouter(t, newUpstreams(t), nil, 64)
	w := postJSON(r, "/evaluate", models.EvaluateRequest{Text: strings.Repeat("pothole ", 64)})

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "validation", decode[models.ErrorResponse](t, w).Kind)
}

func TestEvaluateSingleImageField(t *testing.T) {
	r := setupRouter(t, newUpstreams(t), nil, 0)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("text", "Broken fence along the park"))
	fw, err := mw.CreateFormFile("image", "photo.jpg")
	require.NoError(t, err)
	io.WriteString(fw, "only-image")
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/evaluate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	eval := decode[struct {
		Level        string                  `json:"level"`
		ReportData   *models.MunicipalReport `json:"report_data"`
		ImagesBase64 []string                `json:"images_base64"`
	}](t, w)
	assert.Equal(t, "NON_EMERGENCY", eval.Level)
	require.Len(t, eval.ImagesBase64, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("only-image")), eval.ImagesBase64[0])
	require.NotNil(t, eval.ReportData)
	require.Len(t, eval.ReportData.Images, 1)
	assert.Equal(t, "only-image", string(eval.ReportData.Images[0].Data))
}

// Evaluate a municipal issue with images, then confirm the returned draft as-is.
func TestEvaluateThenConfirm311(t *testing.T) {
	u := newUpstreams(t)
	r := setupRouter(t, u, draft.NewIssuer("secret", time.Minute), 0)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartEvaluate(t, map[string]string{
		"text":     "Graffiti sprayed on the library wall",
		"location": "12 Main St",
	}, "first-image", "second-image"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	eval := decode[struct {
		Level             string                  `json:"level"`
		NeedsConfirmation bool                    `json:"needs_confirmation"`
		ReportData        *models.MunicipalReport `json:"report_data"`
		ImagesBase64      []string                `json:"images_base64"`
		DraftToken        string                  `json:"draft_token"`
	}](t, w)
	assert.Equal(t, "NON_EMERGENCY", eval.Level)
	assert.True(t, eval.NeedsConfirmation)
	require.NotNil(t, eval.ReportData)
	assert.Equal(t, "input:Graffiti", eval.ReportData.ServiceCode)
	assert.Equal(t, "12 Main St", eval.ReportData.AddressString)
	require.Len(t, eval.ImagesBase64, 2)
	assert.NotEmpty(t, eval.DraftToken)
	assert.Zero(t, u.open311Calls.Load(), "evaluate never executes")

	w = postJSON(r, "/confirm-311", models.Confirm311Request{
		ReportData:   eval.ReportData,
		ImagesBase64: eval.ImagesBase64,
		DraftToken:   eval.DraftToken,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.Confirm311Response](t, w)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Report submitted successfully", resp.Message)
	assert.JSONEq(t, `{"status":"success","message":"Report received"}`, string(resp.Submission))
	assert.EqualValues(t, 1, u.open311Calls.Load())
	assert.EqualValues(t, 2, u.open311Media.Load())
}

func TestConfirm311TamperedDraftRejected(t *testing.T) {
	u := newUpstreams(t)
	r := setupRouter(t, u, draft.NewIssuer("secret", time.Minute), 0)

	w := postJSON(r, "/evaluate", models.EvaluateRequest{Text: "Broken streetlight", Location: "Oak Ave"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	eval := decode[struct {
		ReportData *models.MunicipalReport `json:"report_data"`
		DraftToken string                  `json:"draft_token"`
	}](t, w)
	require.NotNil(t, eval.ReportData)

	eval.ReportData.AddressString = "Somewhere else"
	w = postJSON(r, "/confirm-311", models.Confirm311Request{ReportData: eval.ReportData, DraftToken: eval.DraftToken})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode[models.ErrorResponse](t, w).Kind)
	assert.Zero(t, u.open311Calls.Load())
}

func TestConfirm311Multipart(t *testing.T) {
	u := newUpstreams(t)
	r := setupRouter(t, u, nil, 0)

	reportJSON, _ := json.Marshal(models.MunicipalReport{
		ServiceCode:   "PW:BSM:Damage Property",
		ServiceName:   "Damage Property",
		Description:   "Incident report",
		AddressString: "Elm St",
		Status:        "open",
	})
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("report_data", string(reportJSON))
	fw, _ := mw.CreateFormFile("images", "a.jpg")
	io.WriteString(fw, "image-bytes")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/confirm-311", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, u.open311Media.Load())
}

func TestConfirm311Errors(t *testing.T) {
	u := newUpstreams(t)
	r := setupRouter(t, u, nil, 0)

	w := postJSON(r, "/confirm-311", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/confirm-311", map[string]any{
		"report_data":   map[string]string{"service_code": "x", "description": "d", "address_string": "a"},
		"images_base64": []string{"%%%"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, w).Error, "images_base64[0]")
	assert.Zero(t, u.open311Calls.Load())
}

func TestConfirm311UpstreamFailure(t *testing.T) {
	u := newUpstreams(t)
	u.open311Down.Store(true)
	r := setupRouter(t, u, nil, 0)

	w := postJSON(r, "/confirm-311", models.Confirm311Request{ReportData: &models.MunicipalReport{
		ServiceCode: "input:Graffiti", Description: "d", AddressString: "a",
	}})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decode[models.ErrorResponse](t, w)
	assert.Equal(t, "external_service", resp.Kind)
	assert.Equal(t, "down for maintenance", resp.Details)
}

func TestEvaluateEmergencyThenConfirm911(t *testing.T) {
	u := newUpstreams(t)
	r := setupRouter(t, u, nil, 0)

	w := postJSON(r, "/evaluate", models.EvaluateRequest{Text: "House on fire with people inside", Location: "5 Pine Rd"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	eval := decode[struct {
		Level      string                   `json:"level"`
		ReportData *models.EmergencyPayload `json:"report_data"`
	}](t, w)
	assert.Equal(t, "EMERGENCY", eval.Level)
	require.NotNil(t, eval.ReportData)
	assert.Zero(t, u.calls.Load(), "evaluate never places a call")

	w = postJSON(r, "/confirm-911", models.Confirm911Request{ReportData: eval.ReportData})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.Confirm911Response](t, w)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Emergency call initiated", resp.Message)
	assert.Equal(t, "asst-1", resp.CallDetails.AssistantID)
	assert.Equal(t, "call-1", resp.CallDetails.CallID)
	assert.Equal(t, "5 Pine Rd", resp.EmergencyInfo.Location)
}

// Confirmations are not idempotent: the same payload sent twice places two calls.
func TestConfirm911ReplayExecutesTwice(t *testing.T) {
	u := newUpstreams(t)
	r := setupRouter(t, u, nil, 0)
	body := models.Confirm911Request{ReportData: &models.EmergencyPayload{IncidentText: "Man collapsed, not breathing"}}

	assert.Equal(t, http.StatusOK, postJSON(r, "/confirm-911", body).Code)
	assert.Equal(t, http.StatusOK, postJSON(r, "/confirm-911", body).Code)
	assert.EqualValues(t, 2, u.calls.Load())
}

func TestConfirm911MissingPayload(t *testing.T) {
	u := newUpstreams(t)
	r := setupRouter(t, u, nil, 0)

	w := postJSON(r, "/confirm-911", map[string]any{"report_data": map[string]string{"location": "x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode[models.ErrorResponse](t, w).Kind)
	assert.Zero(t, u.calls.Load())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor("validation"))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor("timeout"))
	assert.Equal(t, http.StatusInternalServerError, statusFor("classification"))
	assert.Equal(t, http.StatusBadGateway, statusFor("external_service"))
	assert.Equal(t, http.StatusInternalServerError, statusFor("internal"))
}
