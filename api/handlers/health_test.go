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
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// mockHealthCheck 模拟健康检查
type mockHealthCheck struct {
	name string
	err  error
}

func (m *mockHealthCheck) Name() string {
	return m.name
}

func (m *mockHealthCheck) Check(ctx context.Context) error {
	return m.err
}

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleHealth(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHealthHandler(logger)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)

	handler.HandleHealth(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	err := json.NewDecoder(w.Body).Decode(&status)
	require.NoError(t, err)

	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleHealthz(t *testing.T) {
	logger := zap.NewNop()
	handler := NewHealthHandler(logger)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	handler.HandleHealthz(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	err := json.NewDecoder(w.Body).Decode(&status)
	require.NoError(t, err)

	assert.Equal(t, "healthy", status.Status)
}

func TestHealthHandler_HandleReady(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantState  string
	}{
		{
			name:       "no checks registered",
			checks:     nil,
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "all checks pass",
			checks: []HealthCheck{
				&mockHealthCheck{name: "index"},
				&mockHealthCheck{name: "redis"},
			},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "one check fails",
			checks: []HealthCheck{
				&mockHealthCheck{name: "index"},
				&mockHealthCheck{name: "redis", err: errors.New("connection refused")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(logger)
			for _, c := range tt.checks {
				handler.RegisterCheck(c)
			}

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/ready", nil)

			handler.HandleReady(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)

			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.wantState, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
		})
	}
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/version", nil)

	handler.HandleVersion("1.2.3", "2024-01-01", "abc123")(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var info map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, "abc123", info["git_commit"])
}

// =============================================================================
// 🧪 内置检查测试
// =============================================================================

func TestIndexHealthCheck(t *testing.T) {
	t.Run("non-empty index passes", func(t *testing.T) {
		check := NewIndexHealthCheck("index", func(ctx context.Context) (int, error) {
			return 42, nil
		})
		assert.Equal(t, "index", check.Name())
		assert.NoError(t, check.Check(context.Background()))
	})

	t.Run("empty index fails", func(t *testing.T) {
		check := NewIndexHealthCheck("index", func(ctx context.Context) (int, error) {
			return 0, nil
		})
		assert.Error(t, check.Check(context.Background()))
	})

	t.Run("count error propagates", func(t *testing.T) {
		check := NewIndexHealthCheck("index", func(ctx context.Context) (int, error) {
			return 0, errors.New("store unavailable")
		})
		assert.Error(t, check.Check(context.Background()))
	})
}

func TestRedisHealthCheck(t *testing.T) {
	check := NewRedisHealthCheck("redis", func(ctx context.Context) error {
		return nil
	})
	assert.Equal(t, "redis", check.Name())
	assert.NoError(t, check.Check(context.Background()))
}
