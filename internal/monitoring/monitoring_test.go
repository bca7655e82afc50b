package monitoring

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestMetricsPercentiles(t *testing.T) {
	m := NewMetrics()
	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 100*time.Millisecond, m.GetPercentileResponseTime(100))

	m.Reset()
	assert.Equal(t, time.Duration(0), m.GetPercentileResponseTime(50))
}

func TestMetricsScoringStats(t *testing.T) {
	m := NewMetrics()
	m.RecordScoreComputation("Core_EPA")
	m.RecordScoreComputation("Core_EPA")
	m.RecordNoData("Activity")
	m.IncrementAssessmentCreated()

	stats := m.GetScoringStats()
	assert.Equal(t, int64(2), stats["computations"].(map[string]int64)["Core_EPA"])
	assert.Equal(t, int64(1), stats["no_data"].(map[string]int64)["Activity"])
	assert.Equal(t, int64(1), stats["assessments_created"])
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelInfo)
	metrics := NewMetrics()

	router := gin.New()
	router.Use(RequestIDMiddleware(), MonitoringMiddleware(metrics, logger))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/down", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	router.GET("/metrics", MetricsHandler(metrics))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/down", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "fixed-id", w.Header().Get(RequestIDHeader))

	assert.Equal(t, int64(2), metrics.RequestCount)
	assert.Equal(t, int64(1), metrics.ErrorCount)
	assert.Equal(t, int64(1), metrics.StoreFailures)
	assert.Contains(t, buf.String(), `"request_id":"fixed-id"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Contains(t, stats, "p95_response_time_ms")
	assert.Contains(t, stats, "scoring")
}
