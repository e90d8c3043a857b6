// Package llm provides the language-model answering layer: a ChatClient
// speaking the OpenAI-compatible chat completions protocol, two Answerer
// variants, and a model registry guarding the enumerated backend set.
package llm

import "context"

// Answerer 将 (查询, 检索到的上下文块) 映射为自然语言回答。
// 实现必须在提示词中明确：回答只能基于给定的上下文。
type Answerer interface {
	Answer(ctx context.Context, query string, contexts []string) (string, error)
}

// GenerationParams 生成参数
type GenerationParams struct {
	// Temperature 采样温度
	Temperature float64
	// MaxNewTokens 最大生成 token 数
	MaxNewTokens int
	// ContextWindow 上下文窗口大小
	ContextWindow int
}

// DefaultGenerationParams 返回默认生成参数
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		Temperature:   1.0,
		MaxNewTokens:  256,
		ContextWindow: 3900,
	}
}
