// Copyright (c) RagServe Authors.
// Licensed under the MIT License.

/*
Package pipeline 实现问答请求的阶段化执行：prepare → generate → package。

# 概述

每个请求对应一个 Request 实例，内部状态机沿
created → prepared → answered → packaged 单向推进，任意阶段失败转入
终态 failed，失败的请求不可重试（调用方需新建请求）。

# 核心类型

  - Request      — 单次问答的状态容器（answer_id、查询、检索上下文、答案）
  - QAGenerator  — 阶段执行器，持有检索器、模型注册表与指标采集器
  - State        — 状态枚举与合法迁移表

# 错误语义

  - Prepare 透传类型化错误（未知模型 → InvalidParameters，
    依赖缺失 → Initialization）
  - Generate 记录带 answer_id 的详细日志后，将一切失败掩蔽为
    SERVICE_ERROR "answer generation failed"
  - Package 幂等：重复调用返回缓存的序列化结果
*/
package pipeline
