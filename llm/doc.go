// Copyright (c) RagServe Authors.
// Licensed under the MIT License.

/*
包 llm 提供答案生成层：模型注册表、OpenAI 兼容聊天客户端与两种
提示词组装策略。

# 概述

本包屏蔽推理后端在接口、鉴权和错误语义上的差异，对管线层暴露统一的
Answerer 接口。支持的模型是一个封闭集合，未知模型在任何资源加载之前
即被拒绝。

# 核心接口与类型

  - [Answerer]：答案生成接口，Answer(ctx, query, contexts)
  - [Registry]：模型注册表，校验模型标识并构造对应的 Answerer
  - [ChatClient]：OpenAI 兼容 /v1/chat/completions 客户端
  - [LibraryAnswerer]：委托式提示词组装（responder = "lib"）
  - [GuardedAnswerer]：显式防护提示词，空上下文短路返回固定回复
    （responder = "custom"）
  - [GenerationParams]：采样温度、最大生成 token 数等生成参数

# 错误语义

  - 未知模型标识 → InvalidParametersError（发生在模型加载之前）
  - 模型文件不可读 → InitializationError
  - 推理后端 HTTP 错误 → 按状态码映射为带 Retryable 标记的 types.Error
*/
package llm
