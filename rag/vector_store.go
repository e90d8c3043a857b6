package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// VectorStore 向量索引接口。
// Add 在进程启动时批量调用一次；服务期间索引只读，Search 必须对并发读安全。
type VectorStore interface {
	// Add 批量写入记录
	Add(ctx context.Context, records []Record) error

	// Search 返回至多 topK 条按相似度降序排列的最近邻记录。
	// 排序必须稳定：分数相同按插入顺序。记录数不足 topK 时返回全部，不报错。
	Search(ctx context.Context, queryEmbedding []float64, topK int, mode string) ([]SearchResult, error)

	// Count 返回记录数量
	Count(ctx context.Context) (int, error)
}

// Clearable is an optional interface for VectorStore implementations that
// support clearing all stored data. Use type assertion to check support:
//
//	if c, ok := store.(Clearable); ok { c.ClearAll(ctx) }
type Clearable interface {
	ClearAll(ctx context.Context) error
}

// ====== 内存向量存储 ======

// InMemoryVectorStore 内存向量存储。
// 记录按插入顺序保存；相同分数的结果按插入顺序返回（稳定排序）。
type InMemoryVectorStore struct {
	records []Record
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewInMemoryVectorStore 创建内存向量存储
func NewInMemoryVectorStore(logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{
		records: make([]Record, 0),
		logger:  logger.With(zap.String("component", "vector_store_memory")),
	}
}

// Add 批量写入记录
func (s *InMemoryVectorStore) Add(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		if rec.Embedding == nil {
			return fmt.Errorf("record %s has no embedding", rec.ID)
		}
		s.records = append(s.records, rec)
	}

	s.logger.Info("records added to vector store",
		zap.Int("count", len(records)),
		zap.Int("total", len(s.records)))

	return nil
}

// Search 搜索最近邻记录
func (s *InMemoryVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int, mode string) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, len(s.records))
	for _, rec := range s.records {
		score := cosineSimilarity(queryEmbedding, rec.Embedding)
		results = append(results, SearchResult{
			Record: rec,
			Score:  &score,
		})
	}

	sortByScore(results)

	if topK > len(results) {
		topK = len(results)
	}

	return results[:topK], nil
}

// Count 返回记录数量
func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// ClearAll removes all records from the in-memory store.
func (s *InMemoryVectorStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make([]Record, 0)
	s.logger.Info("all records cleared from vector store")
	return nil
}

// ====== 功用函数 ======

// cosineSimilarity 计算余弦相似度
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortByScore 按分数降序稳定排序；无分数的结果保持原位排在末尾。
func sortByScore(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		si, sj := results[i].Score, results[j].Score
		if si == nil || sj == nil {
			return si != nil && sj == nil
		}
		return *si > *sj
	})
}
