package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qr-attendance-gateway/internal/service"
)

func TestMetricsHandlerSnapshotAndPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordPoll("tick", service.PollOutcomeApplied, 3)
	handler := NewMetricsHandler(metrics)

	c, rec := newTestContext(http.MethodGet, "/metrics/summary", nil)
	handler.Snapshot(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"polls_applied":1`)

	c, rec = newTestContext(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "qr_roster_polls_total")
}

func TestMetricsHandlerWithoutService(t *testing.T) {
	handler := NewMetricsHandler(nil)
	c, rec := newTestContext(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
