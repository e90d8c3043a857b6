package rag

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/types"
)

// SelectorDocRetriever 是当前唯一支持的检索器选择器。
const SelectorDocRetriever = "doc_retriever"

// Retriever 将查询文本映射为按相关性排序的块序列。
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]RetrievedChunk, error)
}

// RetrieverConfig 检索器配置
type RetrieverConfig struct {
	// TopN 默认 top-k（Retrieve 的 topK <= 0 时使用）
	TopN int
	// QueryMode 传递给向量索引的查询模式
	QueryMode string
	// MinScore 最小相似度阈值，0 禁用。仅过滤有分数的结果。
	MinScore float64
}

// DocRetriever 文档检索器：用索引构建时的同一个 EmbeddingProvider 嵌入查询，
// 查询向量索引并按索引给出的顺序返回结果，不在客户端重排。
// 内部不做重试：重试策略属于调用方。
type DocRetriever struct {
	provider EmbeddingProvider
	store    VectorStore
	config   RetrieverConfig
	logger   *zap.Logger
}

// NewDocRetriever 创建文档检索器。
// provider 或 store 缺失返回 InitializationError。
func NewDocRetriever(provider EmbeddingProvider, store VectorStore, config RetrieverConfig, logger *zap.Logger) (*DocRetriever, error) {
	if provider == nil {
		return nil, types.NewError(types.ErrInitialization, "embedding provider is not initialized")
	}
	if store == nil {
		return nil, types.NewError(types.ErrInitialization, "vector store is not initialized")
	}
	if config.TopN <= 0 {
		config.TopN = 2
	}
	if config.QueryMode == "" {
		config.QueryMode = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocRetriever{
		provider: provider,
		store:    store,
		config:   config,
		logger:   logger.With(zap.String("component", "doc_retriever")),
	}, nil
}

// Retrieve 检索与查询最相关的 topK 个块。
// topK <= 0 时使用配置的 TopN。索引记录数不足时返回全部，不报错。
func (r *DocRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrievedChunk, error) {
	if topK <= 0 {
		topK = r.config.TopN
	}
	start := time.Now()

	queryVec, err := r.provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.store.Search(ctx, queryVec, topK, r.config.QueryMode)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	// 保持索引给出的顺序；可选的最小分数过滤只剔除有分数且低于阈值的结果
	retrieved := make([]RetrievedChunk, 0, len(results))
	for _, res := range results {
		if r.config.MinScore > 0 && res.Score != nil && *res.Score < r.config.MinScore {
			continue
		}
		retrieved = append(retrieved, RetrievedChunk{
			Chunk: res.Record.Chunk,
			Score: res.Score,
		})
	}

	r.logger.Debug("retrieval completed",
		zap.Int("top_k", topK),
		zap.Int("returned", len(retrieved)),
		zap.Duration("elapsed", time.Since(start)))

	return retrieved, nil
}

// NewRetrieverFromSelector 按选择器字符串构造检索器。
// 未知选择器返回 InitializationError，构造发生在任何资源获取之前。
func NewRetrieverFromSelector(selector string, provider EmbeddingProvider, store VectorStore, config RetrieverConfig, logger *zap.Logger) (Retriever, error) {
	switch selector {
	case SelectorDocRetriever:
		return NewDocRetriever(provider, store, config, logger)
	default:
		return nil, types.NewError(types.ErrInitialization,
			fmt.Sprintf("unknown retriever selector: %q", selector))
	}
}
