package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ping(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestReadiness(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name     string
		pgErr    error
		redisErr error
		status   string
		code     int
	}{
		{"all up", nil, nil, "ok", http.StatusOK},
		{"redis down", nil, down, "degraded", http.StatusOK},
		{"postgres down", down, nil, "error", http.StatusServiceUnavailable},
		{"both down", down, down, "error", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &HealthHandler{
				env: "test",
				checks: []dependencyCheck{
					{name: "postgres", critical: true, ping: ping(tt.pgErr)},
					{name: "redis", ping: ping(tt.redisErr)},
				},
			}

			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			require.Equal(t, tt.code, rec.Code)
			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Len(t, resp.Dependencies, 2)
		})
	}
}

func TestLiveness(t *testing.T) {
	h := &HealthHandler{env: "test", version: "1.2.3"}

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}
