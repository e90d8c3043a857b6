// Copyright (c) RagServe Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 RagServe HTTP API 的请求处理器实现。

# 概述

handlers 包实现问答端点与健康检查端点的请求处理逻辑，
以及统一的错误信封序列化。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - QnAHandler       — POST /v1/custom_rag_qna 问答处理器
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - ErrorEnvelope    — 错误信封 {name, message, debug_id}
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（向量索引、Redis）

# 错误信封

  - 请求体校验失败 → VALIDATION_ERROR（缺失字段 400，空白字段 422）
  - 服务内已分类错误 → CUSTOM_EXCEPTION（状态码取自错误，默认 500）
  - 未分类错误 → INTERNAL_EXCEPTION 500，不泄露内部细节

每个响应都带 debug_id，与管线的 answer_id 同源，用于日志关联。
*/
package handlers
