// =============================================================================
// 📦 RagServe 配置加载器
// =============================================================================
// 统一配置加载，支持 TOML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("settings.toml").
//	    WithEnvPrefix("RAGSERVE").
//	    Load()
//
// 配置优先级: 默认值 → TOML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 RagServe 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `toml:"server" env:"SERVER"`

	// Corpus 语料库配置（离线索引构建输入）
	Corpus CorpusConfig `toml:"corpus" env:"CORPUS"`

	// Embedding 嵌入模型配置
	Embedding EmbeddingConfig `toml:"embedding" env:"EMBEDDING"`

	// LLM 大语言模型配置
	LLM LLMConfig `toml:"llm" env:"LLM"`

	// Retriever 检索器配置
	Retriever RetrieverConfig `toml:"retriever" env:"RETRIEVER"`

	// Log 日志配置
	Log LogConfig `toml:"log" env:"LOG"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `toml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `toml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `toml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `toml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求限制（按客户端 IP）
	RateLimitRPS int `toml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `toml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的 CORS 来源
	CORSAllowedOrigins []string `toml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// CorpusConfig 语料库配置
type CorpusConfig struct {
	// 原始文本文件路径（已抽取的纯文本）
	RawFilePath string `toml:"raw_file_path" env:"RAW_FILE_PATH"`
	// 索引命名空间（集合名）
	Collection string `toml:"collection" env:"COLLECTION"`
	// 块大小（token 预算）
	ChunkSize int `toml:"chunk_size" env:"CHUNK_SIZE"`
	// 最小块大小（过滤空白碎片，0 禁用）
	MinChunkSize int `toml:"min_chunk_size" env:"MIN_CHUNK_SIZE"`
}

// EmbeddingConfig 嵌入模型配置
type EmbeddingConfig struct {
	// Provider 类型: openai（OpenAI 兼容 HTTP 端点）, hash（本地确定性嵌入）
	Provider string `toml:"provider" env:"PROVIDER"`
	// 嵌入服务基础 URL
	BaseURL string `toml:"base_url" env:"BASE_URL"`
	// 模型名或本地模型路径
	Model string `toml:"model" env:"MODEL"`
	// 向量维度
	Dimensions int `toml:"dimensions" env:"DIMENSIONS"`
	// 请求超时
	Timeout time.Duration `toml:"timeout" env:"TIMEOUT"`
	// API Key（可选）
	APIKey string `toml:"api_key" env:"API_KEY"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// 默认模型标识（请求未指定 model_id 时使用）
	DefaultModel string `toml:"default_model" env:"DEFAULT_MODEL"`
	// 推理服务基础 URL（llama.cpp server / OpenAI 兼容）
	BaseURL string `toml:"base_url" env:"BASE_URL"`
	// 本地模型文件路径（配置后在启动时校验可读性）
	ModelPath string `toml:"model_path" env:"MODEL_PATH"`
	// 响应器变体: lib（委托式）, custom（显式防护提示词）
	Responder string `toml:"responder" env:"RESPONDER"`
	// 采样温度
	Temperature float64 `toml:"temperature" env:"TEMPERATURE"`
	// 最大生成 token 数
	MaxNewTokens int `toml:"max_new_tokens" env:"MAX_NEW_TOKENS"`
	// 上下文窗口大小
	ContextWindow int `toml:"context_window" env:"CONTEXT_WINDOW"`
	// 请求超时
	Timeout time.Duration `toml:"timeout" env:"TIMEOUT"`
	// API Key（可选）
	APIKey string `toml:"api_key" env:"API_KEY"`
}

// RetrieverConfig 检索器配置
type RetrieverConfig struct {
	// 检索器选择器（当前仅支持 doc_retriever）
	Selector string `toml:"selector" env:"SELECTOR"`
	// 检索返回的 top-k 数量
	TopN int `toml:"top_n" env:"TOP_N"`
	// 查询模式（传递给向量索引）
	QueryMode string `toml:"query_mode" env:"QUERY_MODE"`
	// 最小相似度阈值（0 禁用）
	MinScore float64 `toml:"min_score" env:"MIN_SCORE"`
	// 向量存储类型: memory, sqlite, redis
	Store string `toml:"store" env:"STORE"`
	// SQLite 数据库文件路径（store=sqlite 时使用）
	SQLitePath string `toml:"sqlite_path" env:"SQLITE_PATH"`
	// Redis 配置（store=redis 时使用）
	Redis RedisConfig `toml:"redis" env:"REDIS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `toml:"addr" env:"ADDR"`
	// 密码
	Password string `toml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `toml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `toml:"key_prefix" env:"KEY_PREFIX"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `toml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `toml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `toml:"output_paths" env:"OUTPUT_PATHS"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "RAGSERVE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → TOML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 TOML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	// 验证语料库配置
	if c.Corpus.ChunkSize <= 0 {
		errs = append(errs, "chunk_size must be positive")
	}

	// 验证检索器配置
	if c.Retriever.TopN <= 0 {
		errs = append(errs, "top_n must be positive")
	}
	if c.Retriever.MinScore < 0 || c.Retriever.MinScore > 1 {
		errs = append(errs, "min_score must be between 0 and 1")
	}
	switch c.Retriever.Store {
	case "memory", "sqlite", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unsupported store: %s", c.Retriever.Store))
	}

	// 验证 LLM 配置
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.LLM.MaxNewTokens <= 0 {
		errs = append(errs, "max_new_tokens must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
