package rag

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/ragserve/types"
)

// IndexerConfig 索引构建配置
type IndexerConfig struct {
	// Collection 索引命名空间，写入每条记录的元数据
	Collection string
	// BatchSize 单次嵌入请求的块数
	BatchSize int
	// Concurrency 并发嵌入请求数
	Concurrency int
}

// Indexer 语料库索引构建器。
// 进程启动时执行一次：分块 → 批量嵌入 → 批量写入向量存储。
// 嵌入与写入使用同一个 EmbeddingProvider 实例，查询路径必须复用该实例。
type Indexer struct {
	chunker  *SentenceChunker
	provider EmbeddingProvider
	store    VectorStore
	config   IndexerConfig
	logger   *zap.Logger
}

// NewIndexer 创建索引构建器
func NewIndexer(chunker *SentenceChunker, provider EmbeddingProvider, store VectorStore, config IndexerConfig, logger *zap.Logger) *Indexer {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		chunker:  chunker,
		provider: provider,
		store:    store,
		config:   config,
		logger:   logger.With(zap.String("component", "indexer")),
	}
}

// Index 为一组文档构建索引，返回写入的记录数。
// 嵌入失败对索引构建是致命的，包装为 InitializationError 返回。
// 记录按块的原始顺序写入，保证检索 tie-break 的确定性。
func (ix *Indexer) Index(ctx context.Context, docs []Document) (int, error) {
	start := time.Now()

	// 1. 分块
	chunks := make([]Chunk, 0)
	for _, doc := range docs {
		chunks = append(chunks, ix.chunker.Split(doc)...)
	}
	if len(chunks) == 0 {
		ix.logger.Warn("no chunks produced from corpus", zap.Int("documents", len(docs)))
		return 0, nil
	}

	// 2. 批量并发嵌入；结果按批次索引写入，保持顺序
	batches := make([][]string, 0)
	for i := 0; i < len(chunks); i += ix.config.BatchSize {
		end := i + ix.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-i)
		for _, ch := range chunks[i:end] {
			texts = append(texts, ch.Content)
		}
		batches = append(batches, texts)
	}

	embedded := make([][][]float64, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.config.Concurrency)
	for bi, batch := range batches {
		bi, batch := bi, batch
		g.Go(func() error {
			vecs, err := ix.provider.EmbedDocuments(gctx, batch)
			if err != nil {
				return err
			}
			embedded[bi] = vecs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, types.NewError(types.ErrInitialization, "corpus embedding failed").WithCause(err)
	}

	// 3. 组装记录并批量写入
	records := make([]Record, 0, len(chunks))
	pos := 0
	for _, vecs := range embedded {
		for _, vec := range vecs {
			ch := chunks[pos]
			if ch.Metadata == nil {
				ch.Metadata = map[string]interface{}{}
			}
			ch.Metadata["collection"] = ix.config.Collection
			records = append(records, Record{
				ID:        uuid.NewString(),
				Chunk:     ch,
				Embedding: vec,
			})
			pos++
		}
	}

	if err := ix.store.Add(ctx, records); err != nil {
		return 0, types.NewError(types.ErrInitialization, "vector store load failed").WithCause(err)
	}

	ix.logger.Info("index built",
		zap.Int("documents", len(docs)),
		zap.Int("records", len(records)),
		zap.String("collection", ix.config.Collection),
		zap.Duration("elapsed", time.Since(start)))

	return len(records), nil
}
