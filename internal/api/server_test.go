package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"eventsim/internal/api/health"
	"eventsim/internal/api/rest"
	"eventsim/internal/services/confirmation"
	"eventsim/pkg/logger"
)

func TestServer_Routes(t *testing.T) {
	log := logger.NewNop()
	restHandler := rest.NewHandler(rest.Deps{
		Modes: confirmation.NewModeSource(confirmation.ModeAuto),
	}, 10, 10, log)
	srv := NewServer(ServerConfig{ServiceName: "eventsim", Version: "test"}, health.New(log, "eventsim", "test"), restHandler, log)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/live", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/v1/confirmation/mode", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodDelete, "/v1/confirmation/mode", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
