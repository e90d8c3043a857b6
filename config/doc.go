// Package config 提供 RagServe 的配置管理功能。
//
// 配置来源优先级：默认值 → TOML 文件 → RAGSERVE_* 环境变量。
// Loader 采用 Builder 模式组装，Config.Validate 在启动时做一次性校验。
package config
