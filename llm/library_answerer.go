package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// librarySystemPrompt 委托式变体的系统提示词：回答必须以提供的上下文为准。
const librarySystemPrompt = "You are a helpful assistant. Answer the user's question using only the " +
	"provided context passages. If the context does not contain the answer, say that you do not know."

// LibraryAnswerer 委托式响应器（"lib" 变体）：把上下文和问题交给
// 聊天补全后端，由模型自行组织回答。
type LibraryAnswerer struct {
	client *ChatClient
	params GenerationParams
	logger *zap.Logger
}

// NewLibraryAnswerer 创建委托式响应器
func NewLibraryAnswerer(client *ChatClient, params GenerationParams, logger *zap.Logger) *LibraryAnswerer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LibraryAnswerer{
		client: client,
		params: params,
		logger: logger.With(zap.String("component", "answerer_lib")),
	}
}

// Answer 生成回答。生成失败原样返回错误，分类交给上层。
func (a *LibraryAnswerer) Answer(ctx context.Context, query string, contexts []string) (string, error) {
	var sb strings.Builder
	for i, c := range contexts {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, c)
	}

	messages := []ChatMessage{
		{Role: "system", Content: librarySystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Context:\n%s\nQuestion: %s", sb.String(), query)},
	}

	return a.client.Complete(ctx, messages, a.params)
}
