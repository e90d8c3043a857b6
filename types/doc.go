// Copyright (c) RagServe Authors.
// Licensed under the MIT License.

/*
Package types 提供 RagServe 的全局共享类型定义。

# 概述

types 是服务最底层的公共包，不依赖任何内部包，为 rag、llm、pipeline、
api 等上层模块提供统一的错误契约。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、
    Provider 标记
  - 服务错误码：VALIDATION_ERROR、INITIALIZATION_ERROR、
    INVALID_PARAMETERS、SERVICE_ERROR、INTERNAL_ERROR
  - 上游错误码：UNAUTHORIZED、RATE_LIMITED、UPSTREAM_TIMEOUT 等

# 主要能力

  - 错误构建链：NewError(...).WithHTTPStatus(...).WithCause(...)
  - 错误工具：WrapError / AsError / IsErrorCode / IsRetryable
*/
package types
