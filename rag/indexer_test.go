package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragserve/types"
)

// failingProvider 总是返回错误的嵌入生成器
type failingProvider struct{}

func (failingProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return nil, errors.New("embedding backend unavailable")
}

func (failingProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return nil, errors.New("embedding backend unavailable")
}

func (failingProvider) Name() string    { return "failing" }
func (failingProvider) Dimensions() int { return 8 }

func newTestIndexer(store VectorStore, provider EmbeddingProvider, batchSize int) *Indexer {
	chunker := NewSentenceChunker(ChunkingConfig{ChunkSize: 6}, wordTokenizer{}, nil)
	return NewIndexer(chunker, provider, store, IndexerConfig{
		Collection: "biology",
		BatchSize:  batchSize,
	}, nil)
}

func TestIndexer_Index(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)
	indexer := newTestIndexer(store, NewHashEmbeddingProvider(32, nil), 2)

	docs := []Document{
		{ID: "doc-1", Content: "one two three. four five six. seven eight nine."},
		{ID: "doc-2", Content: "ten eleven twelve."},
	}

	n, err := indexer.Index(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIndexer_PreservesChunkOrder(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)
	// batch size 1 强制多批次并发，写入仍须保持块的原始顺序；
	// 每句 4 词，预算 6 词，任意两句都装不进同一块
	indexer := newTestIndexer(store, NewHashEmbeddingProvider(32, nil), 1)

	docs := []Document{
		{ID: "doc-1", Content: "alpha beta gamma delta. epsilon zeta eta theta. iota kappa lambda mu. nu xi omicron pi."},
	}

	_, err := indexer.Index(ctx, docs)
	require.NoError(t, err)

	// 用完全相同的嵌入无法区分顺序，这里直接检查存储内部的插入顺序
	results, err := store.Search(ctx, make([]float64, 32), 10, "default")
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, res := range results {
		assert.Equal(t, i, res.Record.Chunk.Index, "record %d out of order", i)
	}
}

func TestIndexer_StampsCollectionMetadata(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)
	indexer := newTestIndexer(store, NewHashEmbeddingProvider(32, nil), 2)

	_, err := indexer.Index(ctx, []Document{{ID: "doc-1", Content: "some words here."}})
	require.NoError(t, err)

	results, err := store.Search(ctx, make([]float64, 32), 1, "default")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "biology", results[0].Record.Chunk.Metadata["collection"])
	assert.NotEmpty(t, results[0].Record.ID)
}

func TestIndexer_EmptyCorpus(t *testing.T) {
	store := NewInMemoryVectorStore(nil)
	indexer := newTestIndexer(store, NewHashEmbeddingProvider(32, nil), 2)

	n, err := indexer.Index(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = indexer.Index(context.Background(), []Document{{ID: "empty", Content: "  "}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIndexer_EmbeddingFailureIsFatal(t *testing.T) {
	store := NewInMemoryVectorStore(nil)
	indexer := newTestIndexer(store, failingProvider{}, 2)

	_, err := indexer.Index(context.Background(), []Document{{ID: "doc-1", Content: "some words."}})
	require.Error(t, err)

	typedErr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrInitialization, typedErr.Code)

	// 失败时不留下半成品索引
	count, countErr := store.Count(context.Background())
	require.NoError(t, countErr)
	assert.Equal(t, 0, count)
}
