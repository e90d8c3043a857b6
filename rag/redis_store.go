package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisVectorStore 基于 Redis 的向量存储。
// 每条记录保存为一个 hash，键顺序由一个 list 维护（插入顺序即平分 tie-break
// 顺序）。相似度在客户端计算：Search 拉取全部记录做余弦扫描。
// 适合需要跨进程共享索引、语料规模中等的部署。
type RedisVectorStore struct {
	client     *redis.Client
	keyPrefix  string
	collection string
	logger     *zap.Logger
}

// RedisStoreConfig Redis 向量存储配置。
type RedisStoreConfig struct {
	// Addr Redis 地址
	Addr string
	// Password 密码（可选）
	Password string
	// DB 数据库编号
	DB int
	// KeyPrefix 键前缀
	KeyPrefix string
	// Collection 索引命名空间
	Collection string
}

// NewRedisVectorStore 创建 Redis 向量存储并校验连接。
func NewRedisVectorStore(ctx context.Context, cfg RedisStoreConfig, logger *zap.Logger) (*RedisVectorStore, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ragserve"
	}
	if cfg.Collection == "" {
		cfg.Collection = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis store: ping %s: %w", cfg.Addr, err)
	}

	return &RedisVectorStore{
		client:     client,
		keyPrefix:  cfg.KeyPrefix,
		collection: cfg.Collection,
		logger:     logger.With(zap.String("component", "vector_store_redis")),
	}, nil
}

// NewRedisVectorStoreFromClient 复用已有客户端创建存储（测试用）。
func NewRedisVectorStoreFromClient(client *redis.Client, keyPrefix, collection string, logger *zap.Logger) *RedisVectorStore {
	if keyPrefix == "" {
		keyPrefix = "ragserve"
	}
	if collection == "" {
		collection = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisVectorStore{
		client:     client,
		keyPrefix:  keyPrefix,
		collection: collection,
		logger:     logger.With(zap.String("component", "vector_store_redis")),
	}
}

func (s *RedisVectorStore) orderKey() string {
	return fmt.Sprintf("%s:%s:order", s.keyPrefix, s.collection)
}

func (s *RedisVectorStore) recordKey(seq int64) string {
	return fmt.Sprintf("%s:%s:rec:%d", s.keyPrefix, s.collection, seq)
}

func (s *RedisVectorStore) seqKey() string {
	return fmt.Sprintf("%s:%s:seq", s.keyPrefix, s.collection)
}

// Add 按顺序写入记录。
func (s *RedisVectorStore) Add(ctx context.Context, records []Record) error {
	for _, rec := range records {
		if rec.Embedding == nil {
			return fmt.Errorf("record %s has no embedding", rec.ID)
		}

		seq, err := s.client.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return fmt.Errorf("redis store: next seq: %w", err)
		}

		embedding, err := json.Marshal(rec.Embedding)
		if err != nil {
			return fmt.Errorf("redis store: marshal embedding for %s: %w", rec.ID, err)
		}
		metadata := ""
		if rec.Chunk.Metadata != nil {
			data, err := json.Marshal(rec.Chunk.Metadata)
			if err != nil {
				return fmt.Errorf("redis store: marshal metadata for %s: %w", rec.ID, err)
			}
			metadata = string(data)
		}

		key := s.recordKey(seq)
		if err := s.client.HSet(ctx, key, map[string]interface{}{
			"id":        rec.ID,
			"doc_id":    rec.Chunk.DocID,
			"chunk_idx": rec.Chunk.Index,
			"content":   rec.Chunk.Content,
			"tokens":    rec.Chunk.TokenCount,
			"metadata":  metadata,
			"embedding": string(embedding),
		}).Err(); err != nil {
			return fmt.Errorf("redis store: hset %s: %w", key, err)
		}

		if err := s.client.RPush(ctx, s.orderKey(), key).Err(); err != nil {
			return fmt.Errorf("redis store: rpush %s: %w", key, err)
		}
	}

	s.logger.Info("records added to vector store",
		zap.Int("count", len(records)),
		zap.String("collection", s.collection))
	return nil
}

// Search 拉取全部记录做客户端余弦扫描，稳定排序保证插入顺序 tie-break。
func (s *RedisVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int, mode string) ([]SearchResult, error) {
	if topK <= 0 {
		return []SearchResult{}, nil
	}

	keys, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: lrange: %w", err)
	}

	results := make([]SearchResult, 0, len(keys))
	for _, key := range keys {
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("redis store: hgetall %s: %w", key, err)
		}
		if len(fields) == 0 {
			continue
		}

		rec, err := recordFromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("redis store: decode %s: %w", key, err)
		}

		score := cosineSimilarity(queryEmbedding, rec.Embedding)
		results = append(results, SearchResult{Record: rec, Score: &score})
	}

	sortByScore(results)

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Count 返回记录数量。
func (s *RedisVectorStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.orderKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis store: llen: %w", err)
	}
	return int(n), nil
}

// ClearAll 删除集合内的全部记录。
func (s *RedisVectorStore) ClearAll(ctx context.Context) error {
	keys, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis store: lrange: %w", err)
	}
	keys = append(keys, s.orderKey(), s.seqKey())
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis store: del: %w", err)
	}
	return nil
}

// Ping 校验连接，用于就绪检查。
func (s *RedisVectorStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭底层客户端。
func (s *RedisVectorStore) Close() error {
	return s.client.Close()
}

// recordFromFields 从 hash 字段还原记录。
func recordFromFields(fields map[string]string) (Record, error) {
	var rec Record
	rec.ID = fields["id"]
	rec.Chunk.DocID = fields["doc_id"]
	rec.Chunk.Content = fields["content"]

	idx, err := strconv.Atoi(fields["chunk_idx"])
	if err != nil {
		return rec, fmt.Errorf("parse chunk_idx: %w", err)
	}
	rec.Chunk.Index = idx

	tokens, err := strconv.Atoi(fields["tokens"])
	if err != nil {
		return rec, fmt.Errorf("parse tokens: %w", err)
	}
	rec.Chunk.TokenCount = tokens

	if meta := fields["metadata"]; meta != "" {
		if err := json.Unmarshal([]byte(meta), &rec.Chunk.Metadata); err != nil {
			return rec, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	if err := json.Unmarshal([]byte(fields["embedding"]), &rec.Embedding); err != nil {
		return rec, fmt.Errorf("unmarshal embedding: %w", err)
	}

	return rec, nil
}
