package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name         string
		err          *AppError
		wantCategory ErrorCategory
		wantStatus   int
		wantPrefix   string
	}{
		{"validation", NewValidationError("base_score out of range"), CategoryValidation, http.StatusBadRequest, "[VALIDATION_ERROR]"},
		{"not found", NewNotFoundError("assessment", "ASS_1"), CategoryNotFound, http.StatusNotFound, "[NOT_FOUND]"},
		{"no data", NewNoDataError("no assessments", nil), CategoryNoData, http.StatusNotFound, "[NO_DATA]"},
		{"store", NewStoreError("find_assessment", fmt.Errorf("disk I/O error")), CategoryStore, http.StatusServiceUnavailable, "[STORE_ERROR]"},
		{"timeout", NewTimeoutError("deadline", nil), CategoryTimeout, http.StatusGatewayTimeout, "[TIMEOUT_ERROR]"},
		{"rate limit", NewRateLimitError("60"), CategoryRateLimit, http.StatusTooManyRequests, "[RATE_LIMIT_EXCEEDED]"},
		{"internal", NewInternalError("boom", nil), CategoryInternal, http.StatusInternalServerError, "[INTERNAL_ERROR]"},
		{"configuration", NewConfigurationError("bad rules", nil), CategoryConfiguration, http.StatusInternalServerError, "[CONFIGURATION_ERROR]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCategory, tt.err.Category)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
			assert.Contains(t, tt.err.Error(), tt.wantPrefix)
			assert.Equal(t, tt.wantCategory, CategoryOf(tt.err))
		})
	}
}

func TestNotFoundCarriesIdentity(t *testing.T) {
	err := NewNotFoundError("assessment", "ASS_1")
	assert.Equal(t, "assessment not found", err.ErrBuilder.Msg)
	assert.Equal(t, map[string]string{"resource": "assessment", "id": "ASS_1"}, err.Fields)
}

func TestToAppError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, ToAppError(nil))
	})

	t.Run("wrapped app error is unwrapped", func(t *testing.T) {
		inner := NewNoDataError("nothing", nil)
		got := ToAppError(fmt.Errorf("outer: %w", inner))
		assert.Same(t, inner, got)
	})

	t.Run("deadline exceeded maps to timeout", func(t *testing.T) {
		assert.Equal(t, CategoryTimeout, ToAppError(context.DeadlineExceeded).Category)
	})

	t.Run("locked database maps to store", func(t *testing.T) {
		assert.True(t, IsStoreFailure(fmt.Errorf("database is locked")))
	})

	t.Run("anything else is internal", func(t *testing.T) {
		assert.Equal(t, CategoryInternal, ToAppError(fmt.Errorf("surprise")).Category)
	})
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(NewStoreError("ping", nil)))
	assert.True(t, IsRetryableError(NewTimeoutError("slow", nil)))
	assert.False(t, IsRetryableError(NewValidationError("bad")))
	assert.False(t, IsRetryableError(NewNotFoundError("student", "S")))
	assert.False(t, IsRetryableError(nil))
}

func TestRespondWritesStructuredBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("request_id", "req-1")
		c.Next()
	})
	router.Use(ErrorHandler())
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(NewNotFoundError("student", "STU_404"))
	})
	router.GET("/direct", func(c *gin.Context) {
		Respond(c, NewValidationErrorWithMap(map[string]string{"base_score": "must be between 1.0 and 5.0"}))
	})

	t.Run("error handler renders context errors", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		errBody := body["error"].(map[string]any)
		assert.Equal(t, "not_found", errBody["category"])
		assert.Equal(t, "student not found", errBody["message"])
		assert.Equal(t, "req-1", body["request_id"])
	})

	t.Run("respond renders field details", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/direct", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		details := body["details"].(map[string]any)
		assert.Equal(t, "must be between 1.0 and 5.0", details["base_score"])
	})
}

func TestRespondLogsServerErrorsWithCaller(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(previous)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/store", func(c *gin.Context) {
		Respond(c, NewStoreError("list_core_epas", fmt.Errorf("database is locked")))
	})
	router.GET("/missing", func(c *gin.Context) {
		Respond(c, NewNotFoundError("student", "STU_404"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/store", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "API Error", entry["msg"])
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "/store", entry["path"])
	assert.Equal(t, float64(http.StatusServiceUnavailable), entry["status_code"])
	assert.Equal(t, "database is locked", entry["cause"])
	assert.Contains(t, entry["caller"], "errors_test.go")

	buf.Reset()
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.NotContains(t, buf.String(), "API Error")
}

func TestRecoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryHandler())
	router.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal")
}
