// Copyright (c) RagServe Authors.
// Licensed under the MIT License.

/*
# 概述

Package rag 提供检索增强问答的检索侧实现：文档分块、嵌入、向量存储
与检索器。

索引在进程启动时构建一次（或通过离线子命令写入持久化存储），查询路径
与索引路径复用同一个 EmbeddingProvider 实例，保证嵌入空间一致。

# 核心接口与类型

  - Document / Chunk / Record — 语料文档、分块与带嵌入的索引记录
  - Tokenizer — 分块预算使用的 token 计数接口（tiktoken 实现）
  - SentenceChunker — 句子聚合的贪心分块器，超预算句子独立成块
  - EmbeddingProvider — 文本到向量映射（HTTP / 本地哈希两种实现）
  - VectorStore — 向量存储接口（InMemory / SQLite / Redis 三种实现）
  - Indexer — 分块 → 批量并发嵌入 → 按序写入存储
  - Retriever / DocRetriever — 查询嵌入 + 向量检索，保持索引给出的顺序

# 排序确定性

所有存储实现对相同输入产生相同排序：相似度降序，平分时按插入顺序。
检索器不在客户端重排，结果顺序完全由索引决定。
*/
package rag
