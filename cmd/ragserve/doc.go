// Copyright (c) RagServe Authors.
// Licensed under the MIT License.

/*
Package main 提供 RagServe 服务端程序入口。

# 概述

cmd/ragserve 是检索增强问答服务的可执行入口，提供 HTTP API 服务、
离线索引构建、健康检查和版本查询等子命令。程序支持 TOML 配置文件
加载、结构化日志（zap）与 Prometheus 指标采集。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、index（离线构建索引）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    CORS、RateLimiter（基于 IP）、MetricsMiddleware
  - 启动期索引构建：加载语料 → 切块 → 嵌入 → 写入向量存储，
    失败则拒绝上线
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 释放存储连接
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
