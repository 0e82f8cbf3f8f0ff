package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/config"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func testConfig() *config.Config {
	cfg := &config.Config{Version: "test-version", Env: "test"}
	cfg.SQL.Dialect = "postgres"
	return cfg
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		pinger     Pinger
		wantStatus int
		wantBody   HealthResponse
	}{
		{"no datasource", nil, http.StatusOK, HealthResponse{Status: "ok"}},
		{"datasource up", stubPinger{}, http.StatusOK, HealthResponse{Status: "ok", Datasource: "ok"}},
		{"datasource down", stubPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable,
			HealthResponse{Status: "degraded", Datasource: "unreachable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(testConfig(), tt.pinger, nil, zap.NewNop())
			rec := httptest.NewRecorder()

			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	h := NewHealthHandler(testConfig(), nil, func() []string { return []string{"itc", "nestle"} }, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body PingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test-version", body.Version)
	assert.Equal(t, "ekaya-insights", body.Service)
	assert.Equal(t, "postgres", body.Dialect)
	assert.Equal(t, []string{"itc", "nestle"}, body.Tenants)
}
