// =============================================================================
// 📦 RagServe 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Corpus:    DefaultCorpusConfig(),
		Embedding: DefaultEmbeddingConfig(),
		LLM:       DefaultLLMConfig(),
		Retriever: DefaultRetrieverConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultCorpusConfig 返回默认语料库配置
func DefaultCorpusConfig() CorpusConfig {
	return CorpusConfig{
		RawFilePath:  "data/corpus.txt",
		Collection:   "concepts_of_biology",
		ChunkSize:    1024,
		MinChunkSize: 0,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:   "openai",
		BaseURL:    "http://localhost:8081",
		Model:      "all-MiniLM-L6-v2",
		Dimensions: 384,
		Timeout:    30 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		DefaultModel:  "oss_llama-13b",
		BaseURL:       "http://localhost:8082",
		Responder:     "lib",
		Temperature:   1.0,
		MaxNewTokens:  256,
		ContextWindow: 3900,
		Timeout:       2 * time.Minute,
	}
}

// DefaultRetrieverConfig 返回默认检索器配置
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Selector:  "doc_retriever",
		TopN:      2,
		QueryMode: "default",
		MinScore:  0,
		Store:     "memory",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			DB:        0,
			KeyPrefix: "ragserve",
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}
