// Package pipeline drives a question-answering request through its fixed
// lifecycle: prepare (acquire retriever and model handles), generate
// (retrieve context and produce an answer), package (serialize the final
// response). Stage ordering is enforced by an explicit state machine and
// failures are terminal.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/internal/metrics"
	"github.com/BaSui01/ragserve/llm"
	"github.com/BaSui01/ragserve/rag"
	"github.com/BaSui01/ragserve/types"
)

// 管线阶段名，用于失败指标和日志。
const (
	stagePrepare  = "prepare"
	stageGenerate = "generate"
	stagePackage  = "package"
)

// Request 单次问答请求的全部状态。由 QAGenerator 创建并推进，
// 不是并发安全的：一个 Request 只在一个请求 goroutine 内流转。
type Request struct {
	// AnswerID 请求标识，贯穿日志、指标与响应体
	AnswerID string
	// Query 用户查询
	Query string
	// ModelID 解析后的模型标识
	ModelID string
	// StartTime 请求创建时间
	StartTime time.Time

	state State

	// prepare 阶段获取的句柄
	retriever rag.Retriever
	answerer  llm.Answerer

	// generate 阶段的产出
	contexts []string
	answer   string

	// package 阶段的产出，缓存以保证重复打包字节级一致
	payload []byte
}

// State 返回请求当前状态
func (r *Request) State() State { return r.state }

// Answer 返回生成的回答（generate 之前为空串）
func (r *Request) Answer() string { return r.answer }

// Contexts 返回检索到的上下文块内容
func (r *Request) Contexts() []string { return r.contexts }

// responsePayload 最终响应体。字段顺序即序列化顺序。
type responsePayload struct {
	Response  string `json:"response"`
	UserQuery string `json:"user_query"`
	AnswerID  string `json:"answer_id"`
}

// QAGenerator 问答管线。持有检索器与模型注册表，按请求推进状态机。
// 同一实例可被多个请求 goroutine 并发使用。
type QAGenerator struct {
	retriever rag.Retriever
	models    *llm.Registry
	logger    *zap.Logger
	metrics   *metrics.Collector
}

// NewQAGenerator 创建问答管线。metrics 可为 nil。
func NewQAGenerator(retriever rag.Retriever, models *llm.Registry, logger *zap.Logger, collector *metrics.Collector) *QAGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QAGenerator{
		retriever: retriever,
		models:    models,
		logger:    logger.With(zap.String("component", "qa_pipeline")),
		metrics:   collector,
	}
}

// NewRequest 创建一个处于 created 状态的请求并分配 answer_id。
func (g *QAGenerator) NewRequest(query, modelID string) *Request {
	return &Request{
		AnswerID:  uuid.NewString(),
		Query:     query,
		ModelID:   modelID,
		StartTime: time.Now(),
		state:     StateCreated,
	}
}

// transition 推进请求状态，非法转换返回 ErrInvalidTransition。
func (g *QAGenerator) transition(req *Request, to State) error {
	if !CanTransition(req.state, to) {
		return ErrInvalidTransition{From: req.state, To: to}
	}
	req.state = to
	return nil
}

// fail 将请求置为终态 failed（若仍可转换）并记录阶段失败指标。
func (g *QAGenerator) fail(req *Request, stage string) {
	if CanTransition(req.state, StateFailed) {
		req.state = StateFailed
	}
	if g.metrics != nil {
		g.metrics.RecordPipelineFailure(stage)
	}
}

// Prepare 获取检索器与模型句柄，created → prepared。
// 依赖缺失或模型不可用时请求进入 failed，错误原样向上传播，
// 调用方据此区分 INVALID_PARAMETERS 与 INITIALIZATION_ERROR。
func (g *QAGenerator) Prepare(ctx context.Context, req *Request) error {
	if err := g.transition(req, StatePrepared); err != nil {
		g.fail(req, stagePrepare)
		return err
	}

	if g.retriever == nil {
		g.fail(req, stagePrepare)
		return types.NewError(types.ErrInitialization, "retriever not configured")
	}
	req.retriever = g.retriever

	if g.models == nil {
		g.fail(req, stagePrepare)
		return types.NewError(types.ErrInitialization, "model registry not configured")
	}
	answerer, err := g.models.NewAnswerer(req.ModelID)
	if err != nil {
		g.fail(req, stagePrepare)
		return err
	}
	req.answerer = answerer

	return nil
}

// Generate 检索上下文并生成回答，prepared → answered。
// 任何失败都带着 answer_id 记录日志，然后以统一的 SERVICE_ERROR
// 向上抛出，底层细节不穿透到响应里。不做自动重试。
func (g *QAGenerator) Generate(ctx context.Context, req *Request) error {
	if err := g.transition(req, StateAnswered); err != nil {
		g.fail(req, stageGenerate)
		g.logger.Error("answer generation failed",
			zap.String("answer_id", req.AnswerID),
			zap.Error(err),
		)
		return types.NewError(types.ErrService, "answer generation failed").WithCause(err)
	}

	start := time.Now()
	if err := g.generate(ctx, req); err != nil {
		g.fail(req, stageGenerate)
		g.logger.Error("answer generation failed",
			zap.String("answer_id", req.AnswerID),
			zap.Error(err),
		)
		if g.metrics != nil {
			g.metrics.RecordAnswer(req.ModelID, "error", time.Since(start))
		}
		return types.NewError(types.ErrService, "answer generation failed").WithCause(err)
	}

	elapsed := time.Since(start)
	if g.metrics != nil {
		g.metrics.RecordAnswer(req.ModelID, "success", elapsed)
	}
	g.logger.Info("answer generated",
		zap.String("answer_id", req.AnswerID),
		zap.String("model", req.ModelID),
		zap.Int("contexts", len(req.contexts)),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func (g *QAGenerator) generate(ctx context.Context, req *Request) error {
	retrieveStart := time.Now()
	chunks, err := req.retriever.Retrieve(ctx, req.Query, 0)
	if err != nil {
		return fmt.Errorf("retrieve context: %w", err)
	}
	if g.metrics != nil {
		g.metrics.RecordRetrieval("default", len(chunks), time.Since(retrieveStart))
	}

	contexts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		contexts = append(contexts, c.Chunk.Content)
	}
	req.contexts = contexts

	answer, err := req.answerer.Answer(ctx, req.Query, contexts)
	if err != nil {
		return fmt.Errorf("generate answer: %w", err)
	}
	req.answer = answer
	return nil
}

// Package 序列化最终响应，answered → packaged。
// 缺失字段以空串兜底，因此对 answered 状态的请求没有失败路径；
// 重复调用幂等，返回的字节与首次完全一致。
func (g *QAGenerator) Package(req *Request) ([]byte, error) {
	if req.state == StatePackaged {
		return req.payload, nil
	}
	if err := g.transition(req, StatePackaged); err != nil {
		g.fail(req, stagePackage)
		return nil, err
	}

	payload, err := json.Marshal(responsePayload{
		Response:  req.answer,
		UserQuery: req.Query,
		AnswerID:  req.AnswerID,
	})
	if err != nil {
		// responsePayload 只有字符串字段，Marshal 实际不会失败
		g.fail(req, stagePackage)
		return nil, err
	}
	req.payload = payload
	g.logger.Info("result packaged",
		zap.String("answer_id", req.AnswerID),
		zap.Duration("elapsed", time.Since(req.StartTime)),
	)
	return payload, nil
}

// Run 按固定顺序执行整条管线并返回序列化响应。
func (g *QAGenerator) Run(ctx context.Context, req *Request) ([]byte, error) {
	if err := g.Prepare(ctx, req); err != nil {
		return nil, err
	}
	if err := g.Generate(ctx, req); err != nil {
		return nil, err
	}
	return g.Package(req)
}
