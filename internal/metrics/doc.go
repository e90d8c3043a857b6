// 版权所有 2024 RagServe Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、检索、生成、管线与索引五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 检索指标：向量检索耗时、单次返回的上下文块数，按 collection 分组。
  - 生成指标：回答生成总数与耗时，按 model/status 分组。
  - 管线指标：各阶段失败计数，按 stage 分组。
  - 索引指标：索引记录数 Gauge、语料构建耗时 Histogram，
    按 collection 分组。
*/
package metrics
