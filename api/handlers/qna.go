package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/pipeline"
	"github.com/BaSui01/ragserve/types"
)

// =============================================================================
// 💬 问答处理器
// =============================================================================

// QnARequest 问答请求体。字段用 RawMessage 延迟解码：
// 字段缺失（RawMessage 为 nil）和字段存在但类型错误要走不同的校验路径。
type QnARequest struct {
	UserQuery json.RawMessage `json:"user_query"`
	ModelID   json.RawMessage `json:"model_id"`
}

// asString 把原始 JSON 值解析为字符串。null 和非字符串类型都返回 false。
func asString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// QnAHandler 处理 POST /v1/custom_rag_qna
type QnAHandler struct {
	generator    *pipeline.QAGenerator
	defaultModel string
	logger       *zap.Logger
}

// NewQnAHandler 创建问答处理器
func NewQnAHandler(generator *pipeline.QAGenerator, defaultModel string, logger *zap.Logger) *QnAHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QnAHandler{
		generator:    generator,
		defaultModel: defaultModel,
		logger:       logger.With(zap.String("component", "qna_handler")),
	}
}

// HandleQnA 处理问答请求。
// 校验规则：
//   - user_query 字段缺失 → 400 VALIDATION_ERROR
//   - user_query 为 null、非字符串或去除首尾空白后为空 → 422 VALIDATION_ERROR
//   - model_id 缺失、为 null、非字符串或为空 → 使用默认模型并记录告警日志
func (h *QnAHandler) HandleQnA(w http.ResponseWriter, r *http.Request) {
	debugID := uuid.NewString()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req QnARequest
	if err := DecodeJSONBody(w, r, &req, debugID, h.logger); err != nil {
		return
	}

	if req.UserQuery == nil {
		err := types.NewError(types.ErrValidation, "user_query is required").
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, err, debugID, h.logger)
		return
	}
	rawQuery, ok := asString(req.UserQuery)
	if !ok {
		err := types.NewError(types.ErrValidation, "user_query must be a string").
			WithHTTPStatus(http.StatusUnprocessableEntity)
		WriteError(w, err, debugID, h.logger)
		return
	}
	query := strings.TrimSpace(rawQuery)
	if query == "" {
		err := types.NewError(types.ErrValidation, "user_query must not be empty").
			WithHTTPStatus(http.StatusUnprocessableEntity)
		WriteError(w, err, debugID, h.logger)
		return
	}

	modelID := h.defaultModel
	if rawModel, ok := asString(req.ModelID); ok && strings.TrimSpace(rawModel) != "" {
		modelID = strings.TrimSpace(rawModel)
	} else {
		h.logger.Warn("model_id not provided, using default",
			zap.String("debug_id", debugID),
			zap.String("model", modelID),
		)
	}

	pipelineReq := h.generator.NewRequest(query, modelID)
	// 对外的 debug_id 与管线的 answer_id 保持同一个值
	pipelineReq.AnswerID = debugID

	payload, err := h.generator.Run(r.Context(), pipelineReq)
	if err != nil {
		WriteError(w, err, debugID, h.logger)
		return
	}

	WriteRawJSON(w, http.StatusOK, payload)
}
