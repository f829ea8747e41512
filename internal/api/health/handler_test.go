package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

func ok(context.Context) error   { return nil }
func down(context.Context) error { return errors.ErrUnavailable }

func TestRun_Folding(t *testing.T) {
	tests := []struct {
		name   string
		checks []Check
		want   string
	}{
		{"all healthy", []Check{{"redis", true, ok}, {"price_feed", false, ok}}, "healthy"},
		{"optional down", []Check{{"redis", true, ok}, {"price_feed", false, down}}, "degraded"},
		{"critical down", []Check{{"redis", true, down}, {"price_feed", false, down}}, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(logger.NewNop(), "eventsim", "test", tt.checks...)
			status := h.Run(context.Background())
			assert.Equal(t, tt.want, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
		})
	}
}

func TestHandleHealth_ReportsComponentErrors(t *testing.T) {
	h := New(logger.NewNop(), "eventsim", "test", Check{Name: "postgres", Critical: true, Probe: down})

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Checks["postgres"].Status)
	assert.Contains(t, status.Checks["postgres"].Error, "unavailable")
}

func TestHandleReadiness_IgnoresOptionalChecks(t *testing.T) {
	h := New(logger.NewNop(), "eventsim", "test")
	h.Add(Check{Name: "price_feed", Probe: down})

	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.Add(Check{Name: "redis", Critical: true, Probe: down})
	rec = httptest.NewRecorder()
	h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
