package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/ragserve/llm"
	"github.com/BaSui01/ragserve/rag"
	"github.com/BaSui01/ragserve/types"
)

// stubRetriever 返回固定上下文块
type stubRetriever struct {
	chunks []rag.RetrievedChunk
	err    error
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, topK int) ([]rag.RetrievedChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chunks, nil
}

func newChatStub(answer string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": answer}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestRegistry(t *testing.T, baseURL string) *llm.Registry {
	t.Helper()
	reg, err := llm.NewRegistry(llm.RegistryConfig{BaseURL: baseURL}, zap.NewNop())
	require.NoError(t, err)
	return reg
}

func chunk(content string, score float64) rag.RetrievedChunk {
	return rag.RetrievedChunk{
		Chunk: rag.Chunk{Content: content},
		Score: &score,
	}
}

func TestQAGenerator_HappyPath(t *testing.T) {
	srv := newChatStub("mitosis is how cells divide")
	defer srv.Close()

	retriever := &stubRetriever{chunks: []rag.RetrievedChunk{
		chunk("cells divide by mitosis", 0.9),
		chunk("the cell cycle has phases", 0.8),
	}}
	g := NewQAGenerator(retriever, newTestRegistry(t, srv.URL), zap.NewNop(), nil)

	req := g.NewRequest("what is mitosis?", llm.ModelLlama13B)
	assert.Equal(t, StateCreated, req.State())
	assert.NotEmpty(t, req.AnswerID)

	require.NoError(t, g.Prepare(context.Background(), req))
	assert.Equal(t, StatePrepared, req.State())

	require.NoError(t, g.Generate(context.Background(), req))
	assert.Equal(t, StateAnswered, req.State())
	assert.Equal(t, "mitosis is how cells divide", req.Answer())
	assert.Equal(t, []string{"cells divide by mitosis", "the cell cycle has phases"}, req.Contexts())

	payload, err := g.Package(req)
	require.NoError(t, err)
	assert.Equal(t, StatePackaged, req.State())

	var body map[string]string
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, "mitosis is how cells divide", body["response"])
	assert.Equal(t, "what is mitosis?", body["user_query"])
	assert.Equal(t, req.AnswerID, body["answer_id"])
}

func TestQAGenerator_GenerateBeforePrepare(t *testing.T) {
	g := NewQAGenerator(&stubRetriever{}, newTestRegistry(t, "http://localhost:1"), zap.NewNop(), nil)
	req := g.NewRequest("q", llm.ModelLlama13B)

	err := g.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, StateFailed, req.State())

	appErr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrService, appErr.Code)
	assert.Equal(t, "answer generation failed", appErr.Message)

	var transErr ErrInvalidTransition
	assert.True(t, errors.As(err, &transErr))
}

func TestQAGenerator_PrepareUnknownModel(t *testing.T) {
	g := NewQAGenerator(&stubRetriever{}, newTestRegistry(t, "http://localhost:1"), zap.NewNop(), nil)
	req := g.NewRequest("q", "not-a-model")

	err := g.Prepare(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, StateFailed, req.State())

	appErr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrInvalidParameters, appErr.Code)
}

func TestQAGenerator_PrepareMissingRetriever(t *testing.T) {
	g := NewQAGenerator(nil, newTestRegistry(t, "http://localhost:1"), zap.NewNop(), nil)
	req := g.NewRequest("q", llm.ModelLlama13B)

	err := g.Prepare(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, StateFailed, req.State())

	appErr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrInitialization, appErr.Code)
}

func TestQAGenerator_GenerateMasksFailureDetails(t *testing.T) {
	// 检索失败的底层细节不能出现在向上抛出的错误消息里
	retriever := &stubRetriever{err: errors.New("qdrant connection refused at 10.0.0.5")}
	g := NewQAGenerator(retriever, newTestRegistry(t, "http://localhost:1"), zap.NewNop(), nil)

	req := g.NewRequest("q", llm.ModelLlama13B)
	require.NoError(t, g.Prepare(context.Background(), req))

	err := g.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, StateFailed, req.State())

	appErr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrService, appErr.Code)
	assert.Equal(t, "answer generation failed", appErr.Message)
	assert.NotContains(t, appErr.Message, "qdrant")
}

func TestQAGenerator_PackageIdempotent(t *testing.T) {
	srv := newChatStub("an answer")
	defer srv.Close()

	retriever := &stubRetriever{chunks: []rag.RetrievedChunk{chunk("ctx", 0.5)}}
	g := NewQAGenerator(retriever, newTestRegistry(t, srv.URL), zap.NewNop(), nil)

	req := g.NewRequest("a question", llm.ModelLlama13B)
	require.NoError(t, g.Prepare(context.Background(), req))
	require.NoError(t, g.Generate(context.Background(), req))

	first, err := g.Package(req)
	require.NoError(t, err)
	second, err := g.Package(req)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second), "repeated packaging must be byte-identical")
	assert.Equal(t, StatePackaged, req.State())
}

func TestQAGenerator_PackageLogsRequestElapsed(t *testing.T) {
	srv := newChatStub("an answer")
	defer srv.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	retriever := &stubRetriever{chunks: []rag.RetrievedChunk{chunk("ctx", 0.5)}}
	g := NewQAGenerator(retriever, newTestRegistry(t, srv.URL), zap.New(core), nil)

	req := g.NewRequest("a question", llm.ModelLlama13B)
	require.False(t, req.StartTime.IsZero())

	_, err := g.Run(context.Background(), req)
	require.NoError(t, err)

	// 打包时记录从请求创建起的总耗时
	entries := logs.FilterMessage("result packaged").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, req.AnswerID, fields["answer_id"])

	elapsed, ok := fields["elapsed"].(time.Duration)
	require.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	assert.LessOrEqual(t, elapsed, time.Since(req.StartTime))
}

func TestQAGenerator_PackageEmptyDefaults(t *testing.T) {
	// 空回答、空查询以空串兜底，不缺字段
	g := NewQAGenerator(&stubRetriever{}, newTestRegistry(t, "http://localhost:1"), zap.NewNop(), nil)
	req := g.NewRequest("", llm.ModelLlama13B)
	req.state = StateAnswered

	payload, err := g.Package(req)
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, "", body["response"])
	assert.Equal(t, "", body["user_query"])
	assert.Equal(t, req.AnswerID, body["answer_id"])
}

func TestQAGenerator_PackageBeforeAnswered(t *testing.T) {
	g := NewQAGenerator(&stubRetriever{}, newTestRegistry(t, "http://localhost:1"), zap.NewNop(), nil)
	req := g.NewRequest("q", llm.ModelLlama13B)

	_, err := g.Package(req)
	require.Error(t, err)
	var transErr ErrInvalidTransition
	assert.True(t, errors.As(err, &transErr))
}

func TestQAGenerator_Run(t *testing.T) {
	srv := newChatStub("final answer")
	defer srv.Close()

	retriever := &stubRetriever{chunks: []rag.RetrievedChunk{chunk("ctx", 0.7)}}
	g := NewQAGenerator(retriever, newTestRegistry(t, srv.URL), zap.NewNop(), nil)

	req := g.NewRequest("q", llm.ModelLlama13B)
	payload, err := g.Run(context.Background(), req)
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, "final answer", body["response"])
}

func TestQAGenerator_NoRetryOnFailure(t *testing.T) {
	// 失败后请求停在终态，重复调用不会重新执行任何阶段
	retriever := &stubRetriever{err: errors.New("boom")}
	g := NewQAGenerator(retriever, newTestRegistry(t, "http://localhost:1"), zap.NewNop(), nil)

	req := g.NewRequest("q", llm.ModelLlama13B)
	require.NoError(t, g.Prepare(context.Background(), req))
	require.Error(t, g.Generate(context.Background(), req))
	assert.Equal(t, StateFailed, req.State())

	// 修复底层故障也无济于事：failed 是终态
	retriever.err = nil
	retriever.chunks = []rag.RetrievedChunk{chunk("ctx", 0.5)}
	err := g.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, StateFailed, req.State())
}
