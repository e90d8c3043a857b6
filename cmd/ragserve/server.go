package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/api/handlers"
	"github.com/BaSui01/ragserve/config"
	"github.com/BaSui01/ragserve/internal/metrics"
	"github.com/BaSui01/ragserve/internal/server"
	"github.com/BaSui01/ragserve/llm"
	"github.com/BaSui01/ragserve/pipeline"
	"github.com/BaSui01/ragserve/rag"
	"github.com/BaSui01/ragserve/rag/loader"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 RagServe 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// RAG 组件
	store     rag.VectorStore
	provider  rag.EmbeddingProvider
	retriever rag.Retriever

	// 问答管线
	generator *pipeline.QAGenerator

	// Handlers
	healthHandler *handlers.HealthHandler
	qnaHandler    *handlers.QnAHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务。
// 启动顺序：指标收集器 → RAG 组件与索引构建 → 管线与 Handlers →
// HTTP 服务器 → Metrics 服务器。索引构建失败直接返回错误，服务不上线。
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("ragserve", s.logger)

	// 2. 初始化 RAG 组件并构建索引
	if err := s.initRAG(context.Background()); err != nil {
		return fmt.Errorf("failed to init RAG components: %w", err)
	}

	// 3. 初始化管线与 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initRAG 组装嵌入提供者与向量存储，并构建语料索引。
// 索引和查询必须使用同一个嵌入提供者实例，否则向量空间不一致。
func (s *Server) initRAG(ctx context.Context) error {
	provider, err := s.newEmbeddingProvider()
	if err != nil {
		return err
	}
	s.provider = provider

	store, err := s.newVectorStore(ctx)
	if err != nil {
		return err
	}
	s.store = store

	// 持久化存储里已有索引时跳过重建（离线 index 命令的产物）
	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count index records: %w", err)
	}
	if count > 0 {
		s.logger.Info("Reusing existing index",
			zap.Int("records", count),
			zap.String("store", s.cfg.Retriever.Store),
		)
	} else {
		if _, err := s.buildIndex(ctx); err != nil {
			return err
		}
	}

	retriever, err := rag.NewRetrieverFromSelector(
		s.cfg.Retriever.Selector,
		s.provider,
		s.store,
		rag.RetrieverConfig{
			TopN:      s.cfg.Retriever.TopN,
			QueryMode: s.cfg.Retriever.QueryMode,
			MinScore:  s.cfg.Retriever.MinScore,
		},
		s.logger,
	)
	if err != nil {
		return err
	}
	s.retriever = retriever

	return nil
}

// newEmbeddingProvider 按配置创建嵌入提供者
func (s *Server) newEmbeddingProvider() (rag.EmbeddingProvider, error) {
	switch s.cfg.Embedding.Provider {
	case "openai":
		return rag.NewHTTPEmbeddingProvider(rag.HTTPEmbeddingConfig{
			BaseURL:    s.cfg.Embedding.BaseURL,
			APIKey:     s.cfg.Embedding.APIKey,
			Model:      s.cfg.Embedding.Model,
			Dimensions: s.cfg.Embedding.Dimensions,
			Timeout:    s.cfg.Embedding.Timeout,
		}, s.logger), nil
	case "hash":
		return rag.NewHashEmbeddingProvider(s.cfg.Embedding.Dimensions, s.logger), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", s.cfg.Embedding.Provider)
	}
}

// newVectorStore 按配置创建向量存储
func (s *Server) newVectorStore(ctx context.Context) (rag.VectorStore, error) {
	switch s.cfg.Retriever.Store {
	case "memory":
		return rag.NewInMemoryVectorStore(s.logger), nil
	case "sqlite":
		return rag.NewSQLiteVectorStore(rag.SQLiteStoreConfig{
			Path:       s.cfg.Retriever.SQLitePath,
			Collection: s.cfg.Corpus.Collection,
		}, s.logger)
	case "redis":
		return rag.NewRedisVectorStore(ctx, rag.RedisStoreConfig{
			Addr:       s.cfg.Retriever.Redis.Addr,
			Password:   s.cfg.Retriever.Redis.Password,
			DB:         s.cfg.Retriever.Redis.DB,
			KeyPrefix:  s.cfg.Retriever.Redis.KeyPrefix,
			Collection: s.cfg.Corpus.Collection,
		}, s.logger)
	default:
		return nil, fmt.Errorf("unsupported vector store: %s", s.cfg.Retriever.Store)
	}
}

// buildIndex 加载语料文件、切块、嵌入并写入向量存储
func (s *Server) buildIndex(ctx context.Context) (int, error) {
	start := time.Now()

	registry := loader.NewLoaderRegistry()
	docs, err := registry.Load(ctx, s.cfg.Corpus.RawFilePath)
	if err != nil {
		return 0, fmt.Errorf("load corpus %s: %w", s.cfg.Corpus.RawFilePath, err)
	}

	tokenizer := rag.NewTiktokenTokenizer("", s.logger)
	chunker := rag.NewSentenceChunker(rag.ChunkingConfig{
		ChunkSize:    s.cfg.Corpus.ChunkSize,
		MinChunkSize: s.cfg.Corpus.MinChunkSize,
	}, tokenizer, s.logger)

	indexer := rag.NewIndexer(chunker, s.provider, s.store, rag.IndexerConfig{
		Collection: s.cfg.Corpus.Collection,
	}, s.logger)

	count, err := indexer.Index(ctx, docs)
	if err != nil {
		return 0, err
	}

	if s.metricsCollector != nil {
		s.metricsCollector.RecordIndexBuild(s.cfg.Corpus.Collection, count, time.Since(start))
	}
	return count, nil
}

// BuildIndex 供离线 index 命令使用：只组装 RAG 组件并构建索引。
func (s *Server) BuildIndex(ctx context.Context) (int, error) {
	provider, err := s.newEmbeddingProvider()
	if err != nil {
		return 0, err
	}
	s.provider = provider

	store, err := s.newVectorStore(ctx)
	if err != nil {
		return 0, err
	}
	s.store = store

	// 重建前清空旧索引
	if clearable, ok := store.(rag.Clearable); ok {
		if err := clearable.ClearAll(ctx); err != nil {
			return 0, fmt.Errorf("clear existing index: %w", err)
		}
	}

	return s.buildIndex(ctx)
}

// initHandlers 初始化管线与所有 handlers
func (s *Server) initHandlers() error {
	// 模型注册表
	registry, err := llm.NewRegistry(llm.RegistryConfig{
		BaseURL:   s.cfg.LLM.BaseURL,
		APIKey:    s.cfg.LLM.APIKey,
		ModelPath: s.cfg.LLM.ModelPath,
		Responder: s.cfg.LLM.Responder,
		Params: llm.GenerationParams{
			Temperature:   s.cfg.LLM.Temperature,
			MaxNewTokens:  s.cfg.LLM.MaxNewTokens,
			ContextWindow: s.cfg.LLM.ContextWindow,
		},
		Timeout: s.cfg.LLM.Timeout,
	}, s.logger)
	if err != nil {
		return err
	}

	// 问答管线
	s.generator = pipeline.NewQAGenerator(s.retriever, registry, s.logger, s.metricsCollector)

	// 问答 handler
	s.qnaHandler = handlers.NewQnAHandler(s.generator, s.cfg.LLM.DefaultModel, s.logger)

	// 健康检查 handler：索引为空视为未就绪
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewIndexHealthCheck("vector_index", s.store.Count))
	if redisStore, ok := s.store.(*rag.RedisVectorStore); ok {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", redisStore.Ping))
	}

	s.logger.Info("Handlers initialized")
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("/v1/custom_rag_qna", s.qnaHandler.HandleQnA)

	// ========================================
	// 构建中间件链
	// ========================================
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		MetricsMiddleware(s.metricsCollector),
	)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                      // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 释放存储连接
	if closer, ok := s.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("Vector store close error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
