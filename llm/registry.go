package llm

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/types"
)

// ModelLlama13B 是当前唯一支持的模型标识。
const ModelLlama13B = "oss_llama-13b"

// ResponderLib / ResponderCustom 响应器变体标识。
const (
	ResponderLib    = "lib"
	ResponderCustom = "custom"
)

// RegistryConfig 模型注册表配置
type RegistryConfig struct {
	// BaseURL 推理服务基础 URL
	BaseURL string
	// APIKey 可选
	APIKey string
	// ModelPath 本地模型文件路径；配置后在获取句柄时校验可读性
	ModelPath string
	// Responder 变体: lib, custom
	Responder string
	// Params 生成参数
	Params GenerationParams
	// Timeout 请求超时
	Timeout time.Duration
}

// Registry 维护受支持模型的枚举集合并按需构造 Answerer 句柄。
// 未知的模型标识在任何模型加载动作之前被拒绝。
type Registry struct {
	cfg    RegistryConfig
	logger *zap.Logger
}

// NewRegistry 创建模型注册表。未知的响应器变体返回 INVALID_PARAMETERS。
func NewRegistry(cfg RegistryConfig, logger *zap.Logger) (*Registry, error) {
	if cfg.Responder == "" {
		cfg.Responder = ResponderLib
	}
	switch cfg.Responder {
	case ResponderLib, ResponderCustom:
	default:
		return nil, types.NewError(types.ErrInvalidParameters,
			fmt.Sprintf("unknown responder variant: %q", cfg.Responder))
	}
	if cfg.Params == (GenerationParams{}) {
		cfg.Params = DefaultGenerationParams()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "model_registry")),
	}, nil
}

// Supported 返回模型标识是否在支持集合内。
func (r *Registry) Supported(modelID string) bool {
	return modelID == ModelLlama13B
}

// NewAnswerer 为给定模型构造 Answerer 句柄。
//   - 未知模型标识 → INVALID_PARAMETERS，在任何加载尝试之前返回；
//   - 配置的模型文件不可读 → INITIALIZATION_ERROR，部署问题在准备期暴露。
func (r *Registry) NewAnswerer(modelID string) (Answerer, error) {
	if !r.Supported(modelID) {
		return nil, types.NewError(types.ErrInvalidParameters,
			fmt.Sprintf("unsupported model_id: %q", modelID))
	}

	if r.cfg.ModelPath != "" {
		if _, err := os.Stat(r.cfg.ModelPath); err != nil {
			return nil, types.NewError(types.ErrInitialization,
				fmt.Sprintf("model file not readable: %s", r.cfg.ModelPath)).WithCause(err)
		}
	}

	client := NewChatClient(ChatClientConfig{
		BaseURL: r.cfg.BaseURL,
		APIKey:  r.cfg.APIKey,
		Model:   modelID,
		Timeout: r.cfg.Timeout,
	}, r.logger)

	switch r.cfg.Responder {
	case ResponderCustom:
		return NewGuardedAnswerer(client, r.cfg.Params, r.logger), nil
	default:
		return NewLibraryAnswerer(client, r.cfg.Params, r.logger), nil
	}
}
