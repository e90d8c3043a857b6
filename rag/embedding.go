package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/types"
)

// EmbeddingProvider 将文本映射为固定维度向量。
// 索引构建和查询必须复用同一个实例：混用嵌入空间会静默破坏相似度排序。
type EmbeddingProvider interface {
	// EmbedQuery 嵌入单个查询字符串
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	// EmbedDocuments 嵌入多个文档块
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
	// Name 返回提供者名称
	Name() string
	// Dimensions 返回向量维度
	Dimensions() int
}

// =============================================================================
// HTTP embedding provider (OpenAI-compatible /v1/embeddings)
// =============================================================================

// HTTPEmbeddingConfig holds configuration for the HTTP embedding provider.
type HTTPEmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// HTTPEmbeddingProvider calls an OpenAI-compatible /v1/embeddings endpoint
// (llama.cpp server, text-embeddings-inference, or a hosted API).
type HTTPEmbeddingProvider struct {
	cfg    HTTPEmbeddingConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPEmbeddingProvider creates an HTTP embedding provider.
func NewHTTPEmbeddingProvider(cfg HTTPEmbeddingConfig, logger *zap.Logger) *HTTPEmbeddingProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPEmbeddingProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "embedding_http")),
	}
}

func (p *HTTPEmbeddingProvider) Name() string    { return "http-embedding" }
func (p *HTTPEmbeddingProvider) Dimensions() int { return p.cfg.Dimensions }

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// EmbedQuery embeds a single query.
func (p *HTTPEmbeddingProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vecs, err := p.EmbedDocuments(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vecs[0], nil
}

// EmbedDocuments embeds multiple documents in one request.
func (p *HTTPEmbeddingProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	body := embedRequest{Input: documents, Model: p.cfg.Model}

	respBody, err := p.doRequest(ctx, "POST", "/v1/embeddings", body)
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings response: %w", err)
	}

	result := make([][]float64, len(documents))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(result) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		result[d.Index] = d.Embedding
	}
	for i, vec := range result {
		if vec == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return result, nil
}

// doRequest 执行 HTTP 请求并进行统一错误处理。
func (p *HTTPEmbeddingProvider) doRequest(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).
			WithProvider(p.Name())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, string(respBody), p.Name())
	}

	return respBody, nil
}

// mapHTTPError 将 HTTP 状态映射为 types.Error。
func mapHTTPError(status int, msg, provider string) *types.Error {
	code := types.ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	case http.StatusGatewayTimeout:
		code = types.ErrUpstreamTimeout
		retryable = true
	}

	return types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(provider)
}

// =============================================================================
// Hash embedding provider
// =============================================================================

// HashEmbeddingProvider 基于词袋哈希的确定性嵌入生成器。
// 不依赖外部嵌入服务：每个词经 FNV 哈希映射到固定维度的桶并做 L2 归一化，
// 同一文本总是产生相同向量。适用于本地开发和测试。
type HashEmbeddingProvider struct {
	dimension int
	logger    *zap.Logger
}

// NewHashEmbeddingProvider 创建哈希嵌入生成器。dimension <= 0 时默认 128。
func NewHashEmbeddingProvider(dimension int, logger *zap.Logger) *HashEmbeddingProvider {
	if dimension <= 0 {
		dimension = 128
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HashEmbeddingProvider{
		dimension: dimension,
		logger:    logger.With(zap.String("component", "embedding_hash")),
	}
}

func (p *HashEmbeddingProvider) Name() string    { return "hash-embedding" }
func (p *HashEmbeddingProvider) Dimensions() int { return p.dimension }

// EmbedQuery 嵌入单个查询字符串。
func (p *HashEmbeddingProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.embed(query), nil
}

// EmbedDocuments 嵌入多个文档。
func (p *HashEmbeddingProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make([][]float64, len(documents))
	for i, doc := range documents {
		result[i] = p.embed(doc)
	}
	return result, nil
}

// embed 词袋 + 哈希映射到固定维度向量空间，L2 归一化。
func (p *HashEmbeddingProvider) embed(text string) []float64 {
	vec := make([]float64, p.dimension)

	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return vec
	}

	for _, word := range words {
		h := fnv.New32a()
		h.Write([]byte(word))
		pos := int(h.Sum32()) % p.dimension
		if pos < 0 {
			pos += p.dimension
		}
		vec[pos] += 1.0
	}

	// L2 归一化
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec
}
