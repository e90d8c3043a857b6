package rag

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragserve/types"
)

// ============================================================
// HashEmbeddingProvider
// ============================================================

func TestHashEmbeddingProvider_Deterministic(t *testing.T) {
	ctx := context.Background()
	p1 := NewHashEmbeddingProvider(64, nil)
	p2 := NewHashEmbeddingProvider(64, nil)

	// 同一文本在不同实例上产生完全相同的向量
	v1, err := p1.EmbedQuery(ctx, "mitosis divides the cell nucleus")
	require.NoError(t, err)
	v2, err := p2.EmbedQuery(ctx, "mitosis divides the cell nucleus")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestHashEmbeddingProvider_QueryMatchesDocuments(t *testing.T) {
	ctx := context.Background()
	p := NewHashEmbeddingProvider(64, nil)

	// 查询路径和文档路径对同一文本必须产出同一向量
	q, err := p.EmbedQuery(ctx, "cell membrane structure")
	require.NoError(t, err)
	docs, err := p.EmbedDocuments(ctx, []string{"cell membrane structure"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, q, docs[0])
}

func TestHashEmbeddingProvider_Normalized(t *testing.T) {
	ctx := context.Background()
	p := NewHashEmbeddingProvider(128, nil)

	vec, err := p.EmbedQuery(ctx, "some words to embed into a vector")
	require.NoError(t, err)
	require.Len(t, vec, 128)

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestHashEmbeddingProvider_EmptyTextIsZeroVector(t *testing.T) {
	ctx := context.Background()
	p := NewHashEmbeddingProvider(16, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		vec, err := p.EmbedQuery(ctx, text)
		require.NoError(t, err)
		require.Len(t, vec, 16)
		for i, v := range vec {
			if v != 0 {
				t.Fatalf("text %q: component %d is %v, want 0", text, i, v)
			}
		}
	}
}

func TestHashEmbeddingProvider_Defaults(t *testing.T) {
	p := NewHashEmbeddingProvider(0, nil)
	assert.Equal(t, 128, p.Dimensions())
	assert.Equal(t, "hash-embedding", p.Name())
}

func TestHashEmbeddingProvider_ContextCancelled(t *testing.T) {
	p := NewHashEmbeddingProvider(16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.EmbedQuery(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = p.EmbedDocuments(ctx, []string{"text"})
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================
// HTTPEmbeddingProvider
// ============================================================

func newEmbedServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *HTTPEmbeddingProvider) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewHTTPEmbeddingProvider(HTTPEmbeddingConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Model:      "test-embed",
		Dimensions: 3,
		Timeout:    5 * time.Second,
	}, nil)
	return srv, p
}

func TestHTTPEmbeddingProvider_EmbedDocuments(t *testing.T) {
	var gotAuth string
	var gotReq embedRequest
	_, p := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"model": "test-embed",
			"data": []map[string]any{
				{"index": 0, "embedding": []float64{1, 0, 0}},
				{"index": 1, "embedding": []float64{0, 1, 0}},
			},
		})
	})

	vecs, err := p.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	assert.Equal(t, []float64{1, 0, 0}, vecs[0])
	assert.Equal(t, []float64{0, 1, 0}, vecs[1])
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, []string{"first", "second"}, gotReq.Input)
	assert.Equal(t, "test-embed", gotReq.Model)
}

func TestHTTPEmbeddingProvider_OutOfOrderIndices(t *testing.T) {
	// 响应 data 的顺序与输入无关，必须按 index 字段归位
	_, p := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 2, "embedding": []float64{0, 0, 3}},
				{"index": 0, "embedding": []float64{1, 0, 0}},
				{"index": 1, "embedding": []float64{0, 2, 0}},
			},
		})
	})

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float64{1, 0, 0}, vecs[0])
	assert.Equal(t, []float64{0, 2, 0}, vecs[1])
	assert.Equal(t, []float64{0, 0, 3}, vecs[2])
}

func TestHTTPEmbeddingProvider_MissingEmbedding(t *testing.T) {
	_, p := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float64{1, 0, 0}},
			},
		})
	})

	_, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing embedding")
}

func TestHTTPEmbeddingProvider_IndexOutOfRange(t *testing.T) {
	_, p := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 5, "embedding": []float64{1, 0, 0}},
			},
		})
	})

	_, err := p.EmbedDocuments(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestHTTPEmbeddingProvider_RateLimited(t *testing.T) {
	_, p := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	})

	_, err := p.EmbedDocuments(context.Background(), []string{"a"})
	require.Error(t, err)

	typedErr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrRateLimited, typedErr.Code)
	assert.True(t, typedErr.Retryable)
}

func TestHTTPEmbeddingProvider_ServerError(t *testing.T) {
	_, p := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := p.EmbedQuery(context.Background(), "query")
	require.Error(t, err)

	typedErr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrUpstreamError, typedErr.Code)
	assert.True(t, typedErr.Retryable)
}

func TestHTTPEmbeddingProvider_EmbedQueryUnwrapsFirstVector(t *testing.T) {
	_, p := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float64{0.5, 0.5, 0}},
			},
		})
	})

	vec, err := p.EmbedQuery(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5, 0}, vec)
}
