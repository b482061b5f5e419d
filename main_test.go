package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"incident-dispatch/config"
	"incident-dispatch/handlers"
	"incident-dispatch/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestSetupRouterRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{AllowedOrigins: []string{"*"}, RateLimitPerMinute: 1}
	engine := setupRouter(cfg, handlers.NewHandlers(nil, 0))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// an unsupported content type is rejected before the dispatcher is used
	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader("x"))
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusBadRequest, post())
	assert.Equal(t, http.StatusTooManyRequests, post(), "POST routes are rate limited")
}
