package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/BaSui01/ragserve/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// ErrorEnvelope 统一错误响应结构。name 是稳定的错误分类名，
// debug_id 与本次请求的 answer_id 一致，用于日志关联。
type ErrorEnvelope struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
}

// 错误分类名
const (
	EnvelopeValidation = "VALIDATION_ERROR"
	EnvelopeCustom     = "CUSTOM_EXCEPTION"
	EnvelopeInternal   = "INTERNAL_EXCEPTION"
)

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// 如果编码失败，记录错误但不能再写响应头
		// 这里只能记录日志
		return
	}
}

// WriteRawJSON 写入已序列化的 JSON 字节
func WriteRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	w.Write(payload)
}

// WriteError 分类错误并写入错误信封。
// 分类规则：
//   - VALIDATION_ERROR  → 请求体校验失败，状态码由错误携带（400/422）；
//   - CUSTOM_EXCEPTION  → 管线抛出的已分类业务错误
//     （初始化失败、非法参数、服务错误），状态码由错误携带，默认 500；
//   - INTERNAL_EXCEPTION → 其余一切未分类错误，一律 500。
func WriteError(w http.ResponseWriter, err error, debugID string, logger *zap.Logger) {
	name := EnvelopeInternal
	status := http.StatusInternalServerError
	message := "internal server error"

	if appErr, ok := types.AsError(err); ok {
		switch appErr.Code {
		case types.ErrValidation:
			name = EnvelopeValidation
			message = appErr.Message
			status = http.StatusBadRequest
		case types.ErrInitialization, types.ErrInvalidParameters, types.ErrService:
			name = EnvelopeCustom
			message = appErr.Message
		}
		if appErr.HTTPStatus != 0 {
			status = appErr.HTTPStatus
		}
	}

	// 记录错误日志
	if logger != nil {
		logger.Error("API error",
			zap.String("name", name),
			zap.String("debug_id", debugID),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	WriteJSON(w, status, ErrorEnvelope{
		Name:    name,
		Message: message,
		DebugID: debugID,
	})
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体。解码失败返回 VALIDATION_ERROR。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}, debugID string, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewError(types.ErrValidation, "request body is empty").
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, err, debugID, logger)
		return err
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields() // 严格模式：拒绝未知字段

	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrValidation, "invalid JSON body").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, apiErr, debugID, logger)
		return apiErr
	}

	return nil
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
