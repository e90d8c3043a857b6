package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// guardedPromptPrefix 显式防护提示词（"custom" 变体）：
// 限定回答只能来自 ### 包围的上下文，上下文为空时给出固定回绝语。
const guardedPromptPrefix = "You are a search system having an expertise in biology. Your task is to " +
	"correctly answer query mentioned below within quotes. Remember that you can only formulate answer " +
	"based on the context mentioned below between ###. If your context is empty, you simply say " +
	`"I am unable to help you with this query."`

// emptyContextReply 上下文为空时的固定回答，不调用模型。
const emptyContextReply = "I am unable to help you with this query."

// GuardedAnswerer 显式防护提示词响应器。
// 与 LibraryAnswerer 的区别：提示词自带防幻觉护栏，且空上下文短路返回固定
// 回答，不发起模型调用。
type GuardedAnswerer struct {
	client *ChatClient
	params GenerationParams
	logger *zap.Logger
}

// NewGuardedAnswerer 创建防护提示词响应器
func NewGuardedAnswerer(client *ChatClient, params GenerationParams, logger *zap.Logger) *GuardedAnswerer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GuardedAnswerer{
		client: client,
		params: params,
		logger: logger.With(zap.String("component", "answerer_custom")),
	}
}

// Answer 生成回答。上下文为空时返回固定回绝语。
func (a *GuardedAnswerer) Answer(ctx context.Context, query string, contexts []string) (string, error) {
	nonEmpty := make([]string, 0, len(contexts))
	for _, c := range contexts {
		if strings.TrimSpace(c) != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) == 0 {
		a.logger.Info("empty retrieval context, returning canned reply")
		return emptyContextReply, nil
	}

	prompt := fmt.Sprintf("%s\ncontext:###%s###\nquery:'''%s'''",
		guardedPromptPrefix, strings.Join(nonEmpty, "\n"), query)

	messages := []ChatMessage{
		{Role: "user", Content: prompt},
	}

	return a.client.Complete(ctx, messages, a.params)
}
