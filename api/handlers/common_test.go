package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/ragserve/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		data       any
		wantStatus int
	}{
		{
			name:       "simple object",
			data:       map[string]string{"message": "hello"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "array",
			data:       []int{1, 2, 3},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.wantStatus, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWriteRawJSON(t *testing.T) {
	w := httptest.NewRecorder()
	payload := []byte(`{"response":"a","user_query":"b","answer_id":"c"}`)

	WriteRawJSON(w, http.StatusOK, payload)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(payload), w.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestWriteError_Classification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantName   string
		wantStatus int
	}{
		{
			name:       "validation error",
			err:        types.NewError(types.ErrValidation, "user_query is required").WithHTTPStatus(http.StatusBadRequest),
			wantName:   EnvelopeValidation,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "validation error with 422",
			err:        types.NewError(types.ErrValidation, "user_query must not be empty").WithHTTPStatus(http.StatusUnprocessableEntity),
			wantName:   EnvelopeValidation,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "initialization error",
			err:        types.NewError(types.ErrInitialization, "retriever not configured"),
			wantName:   EnvelopeCustom,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "invalid parameters",
			err:        types.NewError(types.ErrInvalidParameters, "unsupported model_id"),
			wantName:   EnvelopeCustom,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "service error",
			err:        types.NewError(types.ErrService, "answer generation failed"),
			wantName:   EnvelopeCustom,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "unclassified error",
			err:        errors.New("something broke"),
			wantName:   EnvelopeInternal,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "other typed error",
			err:        types.NewError(types.ErrUpstreamError, "bad gateway").WithHTTPStatus(http.StatusBadGateway),
			wantName:   EnvelopeInternal,
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, "debug-123", zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)

			var envelope ErrorEnvelope
			require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
			assert.Equal(t, tt.wantName, envelope.Name)
			assert.Equal(t, "debug-123", envelope.DebugID)
			assert.NotEmpty(t, envelope.Message)
		})
	}
}

func TestWriteError_UnclassifiedDoesNotLeakDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.New("password=hunter2 leaked"), "debug-456", zap.NewNop())

	var envelope ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	assert.Equal(t, EnvelopeInternal, envelope.Name)
	assert.NotContains(t, envelope.Message, "hunter2")
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"test"}`))
		w := httptest.NewRecorder()

		var dst payload
		err := DecodeJSONBody(w, r, &dst, "debug-1", zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "test", dst.Name)
	})

	t.Run("malformed body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{broken`))
		w := httptest.NewRecorder()

		var dst payload
		err := DecodeJSONBody(w, r, &dst, "debug-2", zap.NewNop())
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","bogus":1}`))
		w := httptest.NewRecorder()

		var dst payload
		err := DecodeJSONBody(w, r, &dst, "debug-3", zap.NewNop())
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK) // 第二次调用被忽略

	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.True(t, rw.Written)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestResponseWriter_ImplicitOK(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	_, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
}
